package service

import (
	"github.com/zlnvch/canvasverse/cache"
	"github.com/zlnvch/canvasverse/mq"
	"github.com/zlnvch/canvasverse/store"
	"golang.org/x/oauth2"
)

type Service struct {
	Store        store.CanvasStore
	Cache        cache.CanvasverseCache
	MQ           mq.MessageQueue
	OAuthConfigs map[string]*oauth2.Config
	JWTSecret    []byte
}

func NewService(
	store store.CanvasStore,
	cache cache.CanvasverseCache,
	mq mq.MessageQueue,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	return &Service{
		Store:        store,
		Cache:        cache,
		MQ:           mq,
		OAuthConfigs: oauthConfigs,
		JWTSecret:    jwtSecret,
	}, nil
}
