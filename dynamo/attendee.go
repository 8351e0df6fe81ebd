package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
)

var _ registration.Repository = &DB{}

const (
	attendeeEntityName   = "ATTENDEE"
	emailGuardEntityName = "EMAIL"
	counterEntityName    = "COUNTER"

	conditionalCheckFailed = "ConditionalCheckFailed"
	transactionConflict    = "TransactionConflict"
	maxCreateAttempts      = 5
)

type attendeeDynamo struct {
	PK     string
	SK     string
	GSI1PK string
	GSI1SK string

	ID           int64
	Name         string
	Company      string
	Email        string
	Phone        string
	Role         registration.Role
	Expectations *string `dynamodbav:",omitempty"`
	RegisteredAt time.Time
	IsPaid       bool
}

// emailGuardDynamo exists once per registered email. Writing it in the same
// transaction as the attendee makes email uniqueness atomic.
type emailGuardDynamo struct {
	PK         string
	SK         string
	AttendeeID int64
}

type counterDynamo struct {
	Seq int64
}

func attendeePK(id int64) string {
	// Zero padded so the GSI sort key orders by id.
	return fmt.Sprintf("%s#%020d", attendeeEntityName, id)
}

func attendeeSK() string {
	return attendeeEntityName
}

func emailGuardPK(email string) string {
	return fmt.Sprintf("%s#%s", emailGuardEntityName, email)
}

func counterPK() string {
	return fmt.Sprintf("%s#%s", counterEntityName, attendeeEntityName)
}

func attendeeKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: attendeePK(id)},
		"SK": &types.AttributeValueMemberS{Value: attendeeSK()},
	}
}

func newAttendeeDynamo(id int64, attendee registration.NewAttendee, registeredAt time.Time) attendeeDynamo {
	return attendeeDynamo{
		PK:           attendeePK(id),
		SK:           attendeeSK(),
		GSI1PK:       attendeeEntityName,
		GSI1SK:       attendeePK(id),
		ID:           id,
		Name:         attendee.Name,
		Company:      attendee.Company,
		Email:        registration.NormalizeEmail(attendee.Email),
		Phone:        attendee.Phone,
		Role:         attendee.Role,
		Expectations: attendee.Expectations,
		RegisteredAt: registeredAt,
		IsPaid:       false,
	}
}

func (a attendeeDynamo) toAttendee() registration.Attendee {
	return registration.Attendee{
		ID:           a.ID,
		Name:         a.Name,
		Company:      a.Company,
		Email:        a.Email,
		Phone:        a.Phone,
		Role:         a.Role,
		Expectations: a.Expectations,
		RegisteredAt: a.RegisteredAt.UTC(),
		IsPaid:       a.IsPaid,
	}
}

func (d *DB) CreateAttendee(ctx context.Context, attendee registration.NewAttendee) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	id, err := d.nextAttendeeID(ctx)
	if err != nil {
		return registration.Attendee{}, err
	}

	dynamoAttendee := newAttendeeDynamo(id, attendee, time.Now().UTC())

	attendeeItem, err := attributevalue.MarshalMap(dynamoAttendee)
	if err != nil {
		return registration.Attendee{}, registration.NewFailedToTranslateToDBModelError("Failed to translate attendee to dynamo model", err)
	}
	guardItem, err := attributevalue.MarshalMap(emailGuardDynamo{
		PK:         emailGuardPK(dynamoAttendee.Email),
		SK:         emailGuardEntityName,
		AttendeeID: id,
	})
	if err != nil {
		return registration.Attendee{}, registration.NewFailedToTranslateToDBModelError("Failed to translate email guard to dynamo model", err)
	}

	newExpr := exprMustBuild(expression.NewBuilder().WithCondition(newItemConditional()))
	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      attendeeItem,
					ConditionExpression:       newExpr.Condition(),
					ExpressionAttributeNames:  newExpr.Names(),
					ExpressionAttributeValues: newExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      guardItem,
					ConditionExpression:       newExpr.Condition(),
					ExpressionAttributeNames:  newExpr.Names(),
					ExpressionAttributeValues: newExpr.Values(),
				},
			},
		},
	}

	for attempt := 1; ; attempt++ {
		_, err = d.dynamoClient.TransactWriteItems(ctx, input)
		if err == nil {
			return dynamoAttendee.toAttendee(), nil
		}

		var transactionFailedErr *types.TransactionCanceledException
		if errors.As(err, &transactionFailedErr) {
			reasons := transactionFailedErr.CancellationReasons
			if len(reasons) > 1 && aws.ToString(reasons[1].Code) == conditionalCheckFailed {
				return registration.Attendee{}, registration.NewAttendeeAlreadyExistsError(fmt.Sprintf("Attendee with email %q already exists", dynamoAttendee.Email), err)
			}
			if hasCancellationCode(reasons, transactionConflict) && attempt < maxCreateAttempts {
				// Another registration for the same email is mid-flight. Once it
				// commits the retry fails its condition check.
				time.Sleep(time.Duration(attempt) * 20 * time.Millisecond)
				continue
			}
			return registration.Attendee{}, registration.NewFailedToWriteError("Attendee transaction was cancelled", err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("CreateAttendee timed out")
		}
		return registration.Attendee{}, registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
	}
}

func hasCancellationCode(reasons []types.CancellationReason, code string) bool {
	for _, r := range reasons {
		if aws.ToString(r.Code) == code {
			return true
		}
	}
	return false
}

// nextAttendeeID atomically increments the attendee counter item. Ids burnt by
// a failed create are never reused.
func (d *DB) nextAttendeeID(ctx context.Context) (int64, error) {
	expr := exprMustBuild(expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("Seq"), expression.Value(1))))

	resp, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: counterPK()},
			"SK": &types.AttributeValueMemberS{Value: counterEntityName},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, registration.NewTimeoutError("Allocating attendee id timed out")
		}
		return 0, registration.NewFailedToWriteError("Failed to allocate attendee id", err)
	}

	var counter counterDynamo
	err = attributevalue.UnmarshalMap(resp.Attributes, &counter)
	if err != nil {
		return 0, registration.NewFailedToTranslateToDBModelError("Failed to read attendee id counter", err)
	}

	return counter.Seq, nil
}

func (d *DB) GetAttendee(ctx context.Context, id int64) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            attendeeKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("GetAttendee timed out")
		}
		return registration.Attendee{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch attendee %d", id), err)
	}

	if len(resp.Item) == 0 {
		return registration.Attendee{}, registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee %d does not exist", id), nil)
	}

	var attendee attendeeDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &attendee)
	if err != nil {
		return registration.Attendee{}, registration.NewFailedToTranslateToDBModelError(fmt.Sprintf("Failed to unmarshal attendee %d", id), err)
	}

	return attendee.toAttendee(), nil
}

func (d *DB) GetAttendeeByEmail(ctx context.Context, email string) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	email = registration.NormalizeEmail(email)

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: emailGuardPK(email)},
			"SK": &types.AttributeValueMemberS{Value: emailGuardEntityName},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("GetAttendeeByEmail timed out")
		}
		return registration.Attendee{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch attendee with email %q", email), err)
	}

	if len(resp.Item) == 0 {
		return registration.Attendee{}, registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee with email %q does not exist", email), nil)
	}

	var guard emailGuardDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &guard)
	if err != nil {
		return registration.Attendee{}, registration.NewFailedToTranslateToDBModelError("Failed to unmarshal email guard", err)
	}

	return d.GetAttendee(ctx, guard.AttendeeID)
}

func (d *DB) attendeesQuery(sel types.Select) *dynamodb.QueryInput {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(attendeeEntityName)).
		And(expression.Key("GSI1SK").BeginsWith(attendeeEntityName))

	expr := exprMustBuild(expression.NewBuilder().WithKeyCondition(keyCond))

	return &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		IndexName:                 aws.String(gsi1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    sel,
	}
}

func (d *DB) GetAllAttendees(ctx context.Context) ([]registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	attendees := []registration.Attendee{}

	paginator := dynamodb.NewQueryPaginator(d.dynamoClient, d.attendeesQuery(types.SelectAllAttributes))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, registration.NewTimeoutError("GetAllAttendees timed out")
			}
			return nil, registration.NewFailedToFetchError("Failed to fetch attendees from dynamo", err)
		}

		var items []attendeeDynamo
		err = attributevalue.UnmarshalListOfMaps(page.Items, &items)
		if err != nil {
			return nil, registration.NewFailedToTranslateToDBModelError("Failed to unmarshal attendees", err)
		}
		for _, item := range items {
			attendees = append(attendees, item.toAttendee())
		}
	}

	return attendees, nil
}

func (d *DB) GetAttendeesCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count := 0

	paginator := dynamodb.NewQueryPaginator(d.dynamoClient, d.attendeesQuery(types.SelectCount))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, registration.NewTimeoutError("GetAttendeesCount timed out")
			}
			return 0, registration.NewFailedToFetchError("Failed to count attendees in dynamo", err)
		}
		count += int(page.Count)
	}

	return count, nil
}

func (d *DB) UpdateAttendeePaymentStatus(ctx context.Context, id int64, isPaid bool) (registration.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingItemConditional()).
		WithUpdate(expression.Set(expression.Name("IsPaid"), expression.Value(isPaid))))

	resp, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       attendeeKey(id),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			return registration.Attendee{}, registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee %d does not exist", id), err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, registration.NewTimeoutError("UpdateAttendeePaymentStatus timed out")
		}
		return registration.Attendee{}, registration.NewFailedToWriteError("Failed UpdateItem call", err)
	}

	var attendee attendeeDynamo
	err = attributevalue.UnmarshalMap(resp.Attributes, &attendee)
	if err != nil {
		return registration.Attendee{}, registration.NewFailedToTranslateToDBModelError(fmt.Sprintf("Failed to unmarshal attendee %d", id), err)
	}

	return attendee.toAttendee(), nil
}

func (d *DB) MarkAttendeePaid(ctx context.Context, id int64) (registration.Attendee, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	unpaid := existingItemConditional().And(expression.Name("IsPaid").Equal(expression.Value(false)))
	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(unpaid).
		WithUpdate(expression.Set(expression.Name("IsPaid"), expression.Value(true))))

	resp, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       attendeeKey(id),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			// Either the attendee is missing or someone else already paid it.
			attendee, err := d.GetAttendee(ctx, id)
			return attendee, false, err
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.Attendee{}, false, registration.NewTimeoutError("MarkAttendeePaid timed out")
		}
		return registration.Attendee{}, false, registration.NewFailedToWriteError("Failed UpdateItem call", err)
	}

	var attendee attendeeDynamo
	err = attributevalue.UnmarshalMap(resp.Attributes, &attendee)
	if err != nil {
		return registration.Attendee{}, false, registration.NewFailedToTranslateToDBModelError(fmt.Sprintf("Failed to unmarshal attendee %d", id), err)
	}

	return attendee.toAttendee(), true, nil
}
