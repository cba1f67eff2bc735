package dynamo

import (
	"github.com/zlnvch/canvasverse/models"
)

type dynamoUser struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Id         string `dynamodbav:"Id"`
	Provider   string `dynamodbav:"Provider"`
	ProviderId string `dynamodbav:"ProviderId"`
	Username   string `dynamodbav:"Username"`
	Created    int64  `dynamodbav:"Created"`
}

// Map domain User -> Dynamo
func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:         "USER#" + u.Provider + "#" + u.ProviderId,
		SK:         "PROFILE",
		Id:         u.Id,
		Provider:   u.Provider,
		ProviderId: u.ProviderId,
		Username:   u.Username,
		Created:    u.Created,
	}
}

// Map Dynamo -> domain User
func userFromDynamo(du dynamoUser) models.User {
	return models.User{
		Id:         du.Id,
		Username:   du.Username,
		Provider:   du.Provider,
		ProviderId: du.ProviderId,
		Created:    du.Created,
	}
}

type dynamoCanvas struct {
	PK                   string `dynamodbav:"PK"`
	SK                   string `dynamodbav:"SK"`
	Id                   string `dynamodbav:"Id"`
	OwnerId              string `dynamodbav:"OwnerId"`
	Title                string `dynamodbav:"Title"`
	CanvasData           string `dynamodbav:"CanvasData"`
	UpdatedAt            int64  `dynamodbav:"UpdatedAt"`
	CollaborationEnabled bool   `dynamodbav:"CollaborationEnabled"`
	LinkAccessEnabled    bool   `dynamodbav:"LinkAccessEnabled"`
	LinkAccessLevel      string `dynamodbav:"LinkAccessLevel"`
}

// Map domain Canvas -> Dynamo
func canvasToDynamo(c models.Canvas) dynamoCanvas {
	return dynamoCanvas{
		PK:                   "CANVAS#" + c.Id,
		SK:                   "META",
		Id:                   c.Id,
		OwnerId:              c.OwnerId,
		Title:                c.Title,
		CanvasData:           c.Data,
		UpdatedAt:            c.UpdatedAt,
		CollaborationEnabled: c.CollaborationEnabled,
		LinkAccessEnabled:    c.LinkAccessEnabled,
		LinkAccessLevel:      string(c.LinkAccessLevel),
	}
}

// Map Dynamo -> domain Canvas
func canvasFromDynamo(dc dynamoCanvas) models.Canvas {
	return models.Canvas{
		Id:                   dc.Id,
		OwnerId:              dc.OwnerId,
		Title:                dc.Title,
		Data:                 dc.CanvasData,
		UpdatedAt:            dc.UpdatedAt,
		CollaborationEnabled: dc.CollaborationEnabled,
		LinkAccessEnabled:    dc.LinkAccessEnabled,
		LinkAccessLevel:      models.AccessLevel(dc.LinkAccessLevel),
	}
}

type dynamoAccess struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	CanvasId    string `dynamodbav:"CanvasId"`
	UserId      string `dynamodbav:"UserId"`
	AccessLevel string `dynamodbav:"AccessLevel"`
	GrantedAt   int64  `dynamodbav:"GrantedAt"`
	GrantedBy   string `dynamodbav:"GrantedBy"`
}

// Map domain AccessRecord -> Dynamo
func accessToDynamo(a models.AccessRecord) dynamoAccess {
	return dynamoAccess{
		PK:          "CANVAS#" + a.CanvasId,
		SK:          "ACCESS#" + a.UserId,
		CanvasId:    a.CanvasId,
		UserId:      a.UserId,
		AccessLevel: string(a.AccessLevel),
		GrantedAt:   a.GrantedAt,
		GrantedBy:   a.GrantedBy,
	}
}

// Map Dynamo -> domain AccessRecord
func accessFromDynamo(da dynamoAccess) models.AccessRecord {
	return models.AccessRecord{
		CanvasId:    da.CanvasId,
		UserId:      da.UserId,
		AccessLevel: models.AccessLevel(da.AccessLevel),
		GrantedAt:   da.GrantedAt,
		GrantedBy:   da.GrantedBy,
	}
}
