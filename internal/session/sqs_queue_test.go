package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sendInput    *sqs.SendMessageInput
	receiveInput *sqs.ReceiveMessageInput
	deleteInput  *sqs.DeleteMessageInput

	receiveOutput *sqs.ReceiveMessageOutput
	err           error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sendInput = params
	return &sqs.SendMessageOutput{}, f.err
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveInput = params
	if f.receiveOutput == nil {
		return &sqs.ReceiveMessageOutput{}, f.err
	}
	return f.receiveOutput, f.err
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleteInput = params
	return &sqs.DeleteMessageOutput{}, f.err
}

func TestSQSQueueSend(t *testing.T) {
	fake := &fakeSQS{}
	queue := NewSQSQueue(fake, "https://sqs.local/intake-jobs")

	require.NoError(t, queue.Send(context.Background(), `{"id":"job-1"}`))
	require.NotNil(t, fake.sendInput)
	assert.Equal(t, "https://sqs.local/intake-jobs", aws.ToString(fake.sendInput.QueueUrl))
	assert.Equal(t, `{"id":"job-1"}`, aws.ToString(fake.sendInput.MessageBody))
}

func TestSQSQueueReceiveClampsToServiceLimits(t *testing.T) {
	fake := &fakeSQS{}
	queue := NewSQSQueue(fake, "https://sqs.local/intake-jobs")

	_, err := queue.Receive(context.Background(), 50, 90)
	require.NoError(t, err)
	require.NotNil(t, fake.receiveInput)
	assert.Equal(t, int32(sqsMaxBatchSize), fake.receiveInput.MaxNumberOfMessages)
	assert.Equal(t, int32(sqsMaxWaitSeconds), fake.receiveInput.WaitTimeSeconds)

	_, err = queue.Receive(context.Background(), 0, -3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.receiveInput.MaxNumberOfMessages)
	assert.Equal(t, int32(0), fake.receiveInput.WaitTimeSeconds)
}

func TestSQSQueueReceiveMapsMessages(t *testing.T) {
	fake := &fakeSQS{receiveOutput: &sqs.ReceiveMessageOutput{
		Messages: []types.Message{
			{MessageId: aws.String("m-1"), Body: aws.String("first"), ReceiptHandle: aws.String("rh-1")},
			{MessageId: aws.String("m-2"), Body: aws.String("second"), ReceiptHandle: aws.String("rh-2")},
		},
	}}
	queue := NewSQSQueue(fake, "https://sqs.local/intake-jobs")

	messages, err := queue.Receive(context.Background(), 5, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, queueMessage{ID: "m-1", Body: "first", ReceiptHandle: "rh-1"}, messages[0])
	assert.Equal(t, queueMessage{ID: "m-2", Body: "second", ReceiptHandle: "rh-2"}, messages[1])
}

func TestSQSQueueDeleteSkipsEmptyReceipt(t *testing.T) {
	fake := &fakeSQS{}
	queue := NewSQSQueue(fake, "https://sqs.local/intake-jobs")

	require.NoError(t, queue.Delete(context.Background(), ""))
	assert.Nil(t, fake.deleteInput)

	require.NoError(t, queue.Delete(context.Background(), "rh-9"))
	require.NotNil(t, fake.deleteInput)
	assert.Equal(t, "rh-9", aws.ToString(fake.deleteInput.ReceiptHandle))
}

func TestSQSQueueWrapsClientErrors(t *testing.T) {
	fake := &fakeSQS{err: errors.New("throttled")}
	queue := NewSQSQueue(fake, "https://sqs.local/intake-jobs")

	err := queue.Send(context.Background(), "body")
	require.ErrorContains(t, err, "send queue job")

	_, err = queue.Receive(context.Background(), 1, 0)
	require.ErrorContains(t, err, "receive queue jobs")

	err = queue.Delete(context.Background(), "rh-1")
	require.ErrorContains(t, err, "delete queue job")
}
