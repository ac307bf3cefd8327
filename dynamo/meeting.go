package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"meeting-registration/meeting"
)

var _ meeting.Source = &DB{}

type meetingDynamo struct {
	PK                        string
	SK                        string
	Title                     string
	Description               string
	EventDate                 time.Time
	Deadline                  time.Time
	AmountPerAttendeeMinor    int64
	AmountPerAttendeeCurrency string
}

const (
	meetingEntityName = "MEETING"
)

func meetingPK() string {
	return meetingEntityName
}

func meetingSK() string {
	return meetingEntityName
}

func newMeetingDynamo(w meeting.Window) meetingDynamo {
	return meetingDynamo{
		PK:                        meetingPK(),
		SK:                        meetingSK(),
		Title:                     w.Title,
		Description:               w.Description,
		EventDate:                 w.EventDate,
		Deadline:                  w.Deadline,
		AmountPerAttendeeMinor:    w.AmountPerAttendee.Amount(),
		AmountPerAttendeeCurrency: w.AmountPerAttendee.Currency().Code,
	}
}

func windowFromMeetingDynamo(m meetingDynamo) meeting.Window {
	return meeting.Window{
		Title:             m.Title,
		Description:       m.Description,
		EventDate:         m.EventDate,
		Deadline:          m.Deadline,
		AmountPerAttendee: money.New(m.AmountPerAttendeeMinor, m.AmountPerAttendeeCurrency),
	}
}

func (d *DB) GetWindow(ctx context.Context) (meeting.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: meetingPK()},
			"SK": &types.AttributeValueMemberS{Value: meetingSK()},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return meeting.Window{}, meeting.NewTimeoutError("GetWindow timed out")
		}
		return meeting.Window{}, meeting.NewFailedToFetchError("Failed to fetch the meeting window", err)
	}

	if len(resp.Item) == 0 {
		return meeting.Window{}, meeting.NewMeetingNotConfiguredError("No meeting window has been stored", nil)
	}

	var m meetingDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &m)
	if err != nil {
		return meeting.Window{}, meeting.NewFailedToTranslateToDBModelError("Failed to unmarshal meeting window from dynamo", err)
	}

	return windowFromMeetingDynamo(m), nil
}

// PutMeetingWindow replaces the active meeting window. Registrations already recorded keep their amounts.
func (d *DB) PutMeetingWindow(ctx context.Context, w meeting.Window) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if w.AmountPerAttendee == nil {
		return meeting.NewMeetingNotConfiguredError("A meeting window needs a registration amount", nil)
	}

	item, err := attributevalue.MarshalMap(newMeetingDynamo(w))
	if err != nil {
		return meeting.NewFailedToTranslateToDBModelError("Failed to convert meeting window to meetingDynamo", err)
	}

	_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return meeting.NewTimeoutError("PutMeetingWindow timed out")
		}
		return meeting.NewFailedToWriteError("Failed PutItem call", err)
	}

	return nil
}
