package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/store"
)

type DynamoCanvasStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoCanvasStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoCanvasStore, error) {
	client, err := newDynamoDBClient(context.Background(), devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoCanvasStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoCanvasStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	userId, err := uuid.NewV4()
	if err != nil {
		return models.User{}, err
	}
	user.Id = userId.String()

	du := userToDynamo(user)
	du.Created = time.Now().Unix()
	du, _, err = ensureItem(dynamoStore, ctx, du)
	if err != nil {
		return models.User{}, err
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoCanvasStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, "USER#"+provider+"#"+providerId, "PROFILE", false)
	if err != nil {
		return models.User{}, err
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoCanvasStore) DeleteUser(ctx context.Context, provider string, providerId string) error {
	return deleteItem(dynamoStore, ctx, "USER#"+provider+"#"+providerId, "PROFILE", nil)
}

func (dynamoStore *DynamoCanvasStore) CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error) {
	canvasId, err := uuid.NewV4()
	if err != nil {
		return models.Canvas{}, err
	}
	canvas.Id = canvasId.String()
	canvas.UpdatedAt = time.Now().UnixMilli()

	dc := canvasToDynamo(canvas)
	dc, _, err = ensureItem(dynamoStore, ctx, dc)
	if err != nil {
		return models.Canvas{}, err
	}

	return canvasFromDynamo(dc), nil
}

func (dynamoStore *DynamoCanvasStore) GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error) {
	dc, err := getItem[dynamoCanvas](dynamoStore, ctx, "CANVAS#"+canvasId, "META", false)
	if err != nil {
		return models.Canvas{}, err
	}

	return canvasFromDynamo(dc), nil
}

func (dynamoStore *DynamoCanvasStore) ListCanvasesByOwner(ctx context.Context, ownerId string) ([]models.Canvas, error) {
	items, err := queryAllByGSI[dynamoCanvas](dynamoStore, ctx, "GSI_OwnerCanvases", "OwnerId", ownerId)
	if err != nil {
		return nil, err
	}

	canvases := make([]models.Canvas, 0, len(items))
	for _, dc := range items {
		canvases = append(canvases, canvasFromDynamo(dc))
	}
	return canvases, nil
}

func (dynamoStore *DynamoCanvasStore) RenameCanvas(ctx context.Context, canvasId string, title string, updatedAt int64) error {
	dc := dynamoCanvas{PK: "CANVAS#" + canvasId, SK: "META", Title: title, UpdatedAt: updatedAt}
	return updateItemFields(dynamoStore, ctx, dc, []string{"Title", "UpdatedAt"})
}

// UpdateCanvasData is the gateway's write primitive: a single
// conditional UpdateItem that stores the new payload and bumps the
// version stamp. When expectedVersion is supplied, the write only
// succeeds if the stored UpdatedAt still matches it; a lost race
// surfaces as store.ErrConditionFailed, never a partial write.
func (dynamoStore *DynamoCanvasStore) UpdateCanvasData(ctx context.Context, canvasId string, data string, updatedAt int64, expectedVersion *int64) error {
	key := pkSkKey("CANVAS#"+canvasId, "META")

	conditionExpr := "attribute_exists(PK)"
	exprAttrValues := map[string]types.AttributeValue{
		":data": &types.AttributeValueMemberS{Value: data},
		":ts":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", updatedAt)},
	}
	if expectedVersion != nil {
		conditionExpr += " AND UpdatedAt = :expected"
		exprAttrValues[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *expectedVersion)}
	}

	err := updateItemRaw(dynamoStore, ctx, key, "SET CanvasData = :data, UpdatedAt = :ts", conditionExpr, exprAttrValues)
	if err == store.ErrConditionFailed {
		// Distinguish a missing canvas from a lost version race.
		if _, getErr := getItem[dynamoCanvas](dynamoStore, ctx, "CANVAS#"+canvasId, "META", true); getErr == store.ErrItemNotFound {
			return store.ErrItemNotFound
		}
	}
	return err
}

func (dynamoStore *DynamoCanvasStore) SetLinkAccess(ctx context.Context, canvasId string, enabled bool, level models.AccessLevel) error {
	dc := dynamoCanvas{PK: "CANVAS#" + canvasId, SK: "META", LinkAccessEnabled: enabled, LinkAccessLevel: string(level)}
	return updateItemFields(dynamoStore, ctx, dc, []string{"LinkAccessEnabled", "LinkAccessLevel"})
}

func (dynamoStore *DynamoCanvasStore) SetCollaborationEnabled(ctx context.Context, canvasId string, enabled bool) error {
	dc := dynamoCanvas{PK: "CANVAS#" + canvasId, SK: "META", CollaborationEnabled: enabled}
	return updateItemFields(dynamoStore, ctx, dc, []string{"CollaborationEnabled"})
}

func (dynamoStore *DynamoCanvasStore) DeleteCanvas(ctx context.Context, canvasId string) error {
	return deleteItem(dynamoStore, ctx, "CANVAS#"+canvasId, "META", nil)
}

func (dynamoStore *DynamoCanvasStore) PutAccessRecord(ctx context.Context, record models.AccessRecord) error {
	return putItem(dynamoStore, ctx, accessToDynamo(record))
}

func (dynamoStore *DynamoCanvasStore) GetAccessRecord(ctx context.Context, canvasId string, userId string) (models.AccessRecord, error) {
	da, err := getItem[dynamoAccess](dynamoStore, ctx, "CANVAS#"+canvasId, "ACCESS#"+userId, false)
	if err != nil {
		return models.AccessRecord{}, err
	}

	return accessFromDynamo(da), nil
}

func (dynamoStore *DynamoCanvasStore) ListCanvasAccess(ctx context.Context, canvasId string) ([]models.AccessRecord, error) {
	items, err := queryAllByPKPrefix[dynamoAccess](dynamoStore, ctx, "CANVAS#"+canvasId, "ACCESS#", 0)
	if err != nil {
		return nil, err
	}

	records := make([]models.AccessRecord, 0, len(items))
	for _, da := range items {
		records = append(records, accessFromDynamo(da))
	}
	return records, nil
}

func (dynamoStore *DynamoCanvasStore) ListUserAccess(ctx context.Context, userId string) ([]models.AccessRecord, error) {
	items, err := queryAllByGSI[dynamoAccess](dynamoStore, ctx, "GSI_UserAccess", "UserId", userId)
	if err != nil {
		return nil, err
	}

	records := make([]models.AccessRecord, 0, len(items))
	for _, da := range items {
		// The GSI also projects canvas META rows when a user owns
		// canvases; only ACCESS rows carry an AccessLevel.
		if da.AccessLevel == "" {
			continue
		}
		records = append(records, accessFromDynamo(da))
	}
	return records, nil
}

func (dynamoStore *DynamoCanvasStore) DeleteAccessRecord(ctx context.Context, canvasId string, userId string) error {
	return deleteItem(dynamoStore, ctx, "CANVAS#"+canvasId, "ACCESS#"+userId, nil)
}

func (dynamoStore *DynamoCanvasStore) DeleteCanvasAccess(ctx context.Context, canvasId string) error {
	return batchDeleteByPKPrefix(dynamoStore, ctx, "CANVAS#"+canvasId, "ACCESS#")
}
