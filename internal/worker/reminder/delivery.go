package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/hitoshi/jobtrail/internal/model"
)

// 配信チャネル名
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelLog   = "log"
)

// ErrNoRecipient は送信先メールアドレスがない場合のエラー。
var ErrNoRecipient = errors.New("reminder: recipient address is empty")

// Delivery はリマインダーの配信チャネル。
type Delivery interface {
	Name() string
	Send(ctx context.Context, r *model.DueReminder, message string) error
}

// SESAPI はSESクライアントのうち使用するメソッド。
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI はSNSクライアントのうち使用するメソッド。
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESDelivery はユーザーのメールアドレス宛にリマインダーを送信する。
type SESDelivery struct {
	client SESAPI
	from   string
}

// NewSESDelivery は新しいSESDeliveryを生成する。
func NewSESDelivery(client SESAPI, from string) *SESDelivery {
	return &SESDelivery{client: client, from: from}
}

func (d *SESDelivery) Name() string { return ChannelEmail }

// Send はメールを送信する。
func (d *SESDelivery) Send(ctx context.Context, r *model.DueReminder, message string) error {
	if r.UserEmail == "" {
		return ErrNoRecipient
	}
	subject := "[jobtrail] リマインダー"
	if r.Company != "" {
		subject = fmt.Sprintf("[jobtrail] %s %s のリマインダー", r.Company, r.Position)
	}

	_, err := d.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{r.UserEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(message)},
			},
		},
		Source: aws.String(d.from),
	})
	if err != nil {
		return fmt.Errorf("failed to send reminder email: %w", err)
	}
	return nil
}

// SNSDelivery はSNSトピックへリマインダーを発行する。
type SNSDelivery struct {
	client   SNSAPI
	topicARN string
}

// NewSNSDelivery は新しいSNSDeliveryを生成する。
func NewSNSDelivery(client SNSAPI, topicARN string) *SNSDelivery {
	return &SNSDelivery{client: client, topicARN: topicARN}
}

func (d *SNSDelivery) Name() string { return ChannelPush }

// Send はユーザーIDをメッセージ属性に付けてトピックへ発行する。
func (d *SNSDelivery) Send(ctx context.Context, r *model.DueReminder, message string) error {
	_, err := d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.topicARN),
		Message:  aws.String(message),
		Subject:  aws.String("jobtrail reminder"),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"user_id": {DataType: aws.String("String"), StringValue: aws.String(r.UserID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish reminder: %w", err)
	}
	return nil
}

// LogDelivery は外部チャネル未設定時に構造化ログへ出力する。
type LogDelivery struct {
	logger *slog.Logger
}

// NewLogDelivery は新しいLogDeliveryを生成する。
func NewLogDelivery(logger *slog.Logger) *LogDelivery {
	return &LogDelivery{logger: logger}
}

func (d *LogDelivery) Name() string { return ChannelLog }

func (d *LogDelivery) Send(_ context.Context, r *model.DueReminder, message string) error {
	d.logger.Info("リマインダー",
		slog.String("user_id", r.UserID),
		slog.String("note_id", r.ID),
		slog.String("application_id", r.ApplicationID),
		slog.String("message", message),
	)
	return nil
}

// compile-time interface check
var (
	_ Delivery = (*SESDelivery)(nil)
	_ Delivery = (*SNSDelivery)(nil)
	_ Delivery = (*LogDelivery)(nil)
)
