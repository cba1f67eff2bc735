package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/zlnvch/canvasverse/cache"
	"github.com/zlnvch/canvasverse/mq"
	"github.com/zlnvch/canvasverse/store"
)

type MQConsumer struct {
	canvasCleanupQueue mq.MessageQueue
	canvasStore        store.CanvasStore
	canvasCache        cache.CanvasverseCache
}

func NewMQConsumer(canvasCleanupQueue mq.MessageQueue, canvasStore store.CanvasStore, canvasCache cache.CanvasverseCache) *MQConsumer {
	return &MQConsumer{
		canvasCleanupQueue: canvasCleanupQueue,
		canvasStore:        canvasStore,
		canvasCache:        canvasCache,
	}
}

// Allow up to 5 minutes for the batched deletion of a canvas's access records
const visibilityTimeout = 300

func (mqConsumer MQConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := mqConsumer.canvasCleanupQueue.Receive(shutdownCtx, visibilityTimeout)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("mqConsumer receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		var cleanupMsg mq.CanvasCleanupMessage
		if err := json.Unmarshal([]byte(msg.Body), &cleanupMsg); err != nil {
			continue
		}
		if cleanupMsg.CanvasId == "" {
			continue
		}

		// timeout should be a little less than queue visibility timeout
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)

		err = mqConsumer.canvasStore.DeleteCanvasAccess(ctx, cleanupMsg.CanvasId)
		if err == nil {
			if presenceErr := mqConsumer.canvasCache.RemoveCanvasPresence(ctx, cleanupMsg.CanvasId); presenceErr != nil {
				log.Printf("Failed to remove presence for canvas %s: %v", cleanupMsg.CanvasId, presenceErr)
			}
			if cacheErr := mqConsumer.canvasCache.InvalidateCanvas(ctx, cleanupMsg.CanvasId); cacheErr != nil {
				log.Printf("Failed to invalidate cache for canvas %s: %v", cleanupMsg.CanvasId, cacheErr)
			}
		}
		cancel()

		if err != nil {
			log.Printf("canvasStore cleanup error: %v", err)
			continue
		}

		err = mqConsumer.canvasCleanupQueue.Delete(context.Background(), msg)
		if err != nil {
			log.Printf("mqConsumer delete error: %v", err)
			continue
		}
	}
}
