package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"

	"meeting-registration/ledger"
	"meeting-registration/registration"
)

var _ ledger.Store = &DB{}

type registrationDynamo struct {
	PK string
	SK string

	ID             int
	Version        int
	Timestamp      time.Time
	Station        string
	District       string
	Church         string
	LeaderName     string
	LeaderPhone    string
	LeaderEmail    *string
	Attendees      []registration.Attendee
	AmountMinor    int64
	AmountCurrency string
	InvoiceNumber  string
	Paid           bool
	PaidAt         *time.Time
}

// invoiceDynamo reserves an invoice number so no two registrations can ever share one.
type invoiceDynamo struct {
	PK             string
	SK             string
	Version        int
	RegistrationID int
}

const (
	ledgerPartition        = "LEDGER"
	registrationEntityName = "REGISTRATION"
	invoiceEntityName      = "INVOICE"
)

func registrationPK() string {
	return ledgerPartition
}

// Zero padded so the sort key order matches the id order.
func registrationSK(id int) string {
	return fmt.Sprintf("%s#%010d", registrationEntityName, id)
}

func invoicePK(invoiceNumber string) string {
	return fmt.Sprintf("%s#%s", invoiceEntityName, invoiceNumber)
}

func invoiceSK(invoiceNumber string) string {
	return fmt.Sprintf("%s#%s", invoiceEntityName, invoiceNumber)
}

func registrationToDynamo(reg registration.Registration) registrationDynamo {
	return registrationDynamo{
		PK:             registrationPK(),
		SK:             registrationSK(reg.ID),
		ID:             reg.ID,
		Version:        reg.Version,
		Timestamp:      reg.Timestamp,
		Station:        reg.Station,
		District:       reg.District,
		Church:         reg.Church,
		LeaderName:     reg.LeaderName,
		LeaderPhone:    reg.LeaderPhone,
		LeaderEmail:    reg.LeaderEmail,
		Attendees:      reg.Attendees,
		AmountMinor:    reg.Amount.Amount(),
		AmountCurrency: reg.Amount.Currency().Code,
		InvoiceNumber:  reg.InvoiceNumber,
		Paid:           reg.Paid,
		PaidAt:         reg.PaidAt,
	}
}

func dynamoToRegistration(dynReg registrationDynamo) registration.Registration {
	return registration.Registration{
		ID:            dynReg.ID,
		Version:       dynReg.Version,
		Timestamp:     dynReg.Timestamp,
		Station:       dynReg.Station,
		District:      dynReg.District,
		Church:        dynReg.Church,
		LeaderName:    dynReg.LeaderName,
		LeaderPhone:   dynReg.LeaderPhone,
		LeaderEmail:   dynReg.LeaderEmail,
		Attendees:     dynReg.Attendees,
		Amount:        money.New(dynReg.AmountMinor, dynReg.AmountCurrency),
		InvoiceNumber: dynReg.InvoiceNumber,
		Paid:          dynReg.Paid,
		PaidAt:        dynReg.PaidAt,
	}
}

func (d *DB) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	dynamoReg := registrationToDynamo(reg)

	regItem, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}
	regExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(newEntityVersionConditional(dynamoReg.Version)))

	invoiceItem, err := attributevalue.MarshalMap(invoiceDynamo{
		PK:             invoicePK(reg.InvoiceNumber),
		SK:             invoiceSK(reg.InvoiceNumber),
		Version:        1,
		RegistrationID: reg.ID,
	})
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate invoice to dynamo model", err)
	}
	invoiceExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(newEntityVersionConditional(1)))

	_, err = d.dynamoClient.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      regItem,
					ConditionExpression:       regExpr.Condition(),
					ExpressionAttributeNames:  regExpr.Names(),
					ExpressionAttributeValues: regExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      invoiceItem,
					ConditionExpression:       invoiceExpr.Condition(),
					ExpressionAttributeNames:  invoiceExpr.Names(),
					ExpressionAttributeValues: invoiceExpr.Values(),
				},
			},
		},
	})
	if err != nil {
		var transactionFailedErr *types.TransactionCanceledException
		if errors.As(err, &transactionFailedErr) {
			if len(transactionFailedErr.CancellationReasons) > 0 && isConditionalCheckFailure(transactionFailedErr.CancellationReasons[0]) {
				return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Registration with ID %d already exists", reg.ID), err)
			}
			return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Invoice number %q already exists", reg.InvoiceNumber), err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.NewTimeoutError("CreateRegistration timed out")
		} else {
			return registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
		}
	}

	return nil
}

func isConditionalCheckFailure(reason types.CancellationReason) bool {
	return reason.Code != nil && *reason.Code == "ConditionalCheckFailed"
}

func (d *DB) UpdateRegistrationToPaid(ctx context.Context, reg registration.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	dynamoReg := registrationToDynamo(reg)

	item, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}

	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingEntityVersionConditional(dynamoReg.Version)))

	_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(d.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			return registration.NewFailedToWriteError(fmt.Sprintf("Version conflict updating registration %d", reg.ID), err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return registration.NewTimeoutError("UpdateRegistrationToPaid timed out")
		} else {
			return registration.NewFailedToWriteError("Failed PutItem call", err)
		}
	}

	return nil
}

func (d *DB) GetRegistration(ctx context.Context, id int) (registration.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: registrationPK()},
			"SK": &types.AttributeValueMemberS{Value: registrationSK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Registration{}, registration.NewTimeoutError("GetRegistration timed out")
		}
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with id %d", id), err)
	}

	if len(resp.Item) == 0 {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with id %d not found", id), nil)
	}

	var dynReg registrationDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &dynReg)
	if err != nil {
		return registration.Registration{}, registration.NewFailedToTranslateToDBModelError("Failed to unmarshal registration from dynamo", err)
	}

	return dynamoToRegistration(dynReg), nil
}

// LoadRegistrations pages through the whole ledger partition in id order.
func (d *DB) LoadRegistrations(ctx context.Context) ([]registration.Registration, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(registrationPK())).
		And(expression.Key("SK").BeginsWith(registrationEntityName))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build dynamo key expression: %s", err))
	}

	var regs []registration.Registration
	var startKey map[string]types.AttributeValue
	for {
		page, lastKey, err := d.queryRegistrations(ctx, expr, startKey)
		if err != nil {
			return nil, err
		}
		regs = append(regs, page...)

		if len(lastKey) == 0 {
			return regs, nil
		}
		startKey = lastKey
	}
}

func (d *DB) queryRegistrations(ctx context.Context, expr expression.Expression, startKey map[string]types.AttributeValue) ([]registration.Registration, map[string]types.AttributeValue, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	result, err := d.dynamoClient.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, registration.NewTimeoutError("LoadRegistrations timed out")
		}
		return nil, nil, registration.NewFailedToFetchError("Failed to fetch registrations from dynamo", err)
	}

	var dynamoItems []registrationDynamo
	err = attributevalue.UnmarshalListOfMaps(result.Items, &dynamoItems)
	if err != nil {
		return nil, nil, registration.NewFailedToTranslateToDBModelError("Failed to unmarshal dynamo registrations", err)
	}

	return lo.Map(dynamoItems, func(v registrationDynamo, _ int) registration.Registration {
		return dynamoToRegistration(v)
	}), result.LastEvaluatedKey, nil
}
