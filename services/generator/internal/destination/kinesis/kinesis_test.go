package kinesis

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/smithy-go"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	describeErr error
	status      types.StreamStatus
	putErr      error
	puts        []*kinesis.PutRecordInput
}

func (f *fakeAPI) DescribeStreamSummary(_ context.Context, params *kinesis.DescribeStreamSummaryInput, _ ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}

	return &kinesis.DescribeStreamSummaryOutput{
		StreamDescriptionSummary: &types.StreamDescriptionSummary{
			StreamName:   params.StreamName,
			StreamStatus: f.status,
		},
	}, nil
}

func (f *fakeAPI) PutRecord(_ context.Context, params *kinesis.PutRecordInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error) {
	f.puts = append(f.puts, params)
	if f.putErr != nil {
		return nil, f.putErr
	}

	return &kinesis.PutRecordOutput{
		ShardId:        aws.String("shardId-000000000001"),
		SequenceNumber: aws.String("49590338271490256608559692538361571095921575989136588898"),
	}, nil
}

var staticCredentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
	return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
})

func TestValidate_ActiveStream(t *testing.T) {
	s := NewWithAPI(&fakeAPI{status: types.StreamStatusActive}, staticCredentials, "sales", "us-east-1")

	require.NoError(t, s.Validate(context.Background()))
	require.Equal(t, "kinesis:us-east-1/sales", s.Name())
}

func TestValidate_MissingCredentials(t *testing.T) {
	noCredentials := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no EC2 IMDS role found")
	})

	api := &fakeAPI{status: types.StreamStatusActive}
	err := NewWithAPI(api, noCredentials, "sales", "us-east-1").Validate(context.Background())
	require.ErrorIs(t, err, destination.ErrUnauthorized)

	err = NewWithAPI(api, nil, "sales", "us-east-1").Validate(context.Background())
	require.ErrorIs(t, err, destination.ErrUnauthorized)
}

func TestValidate_StreamNotFound(t *testing.T) {
	api := &fakeAPI{describeErr: &types.ResourceNotFoundException{Message: aws.String("Stream sales not found")}}

	err := NewWithAPI(api, staticCredentials, "sales", "us-east-1").Validate(context.Background())
	require.ErrorIs(t, err, destination.ErrDestinationNotFound)
	require.Contains(t, err.Error(), "sales")
}

func TestValidate_DeletingStream(t *testing.T) {
	api := &fakeAPI{status: types.StreamStatusDeleting}

	err := NewWithAPI(api, staticCredentials, "sales", "us-east-1").Validate(context.Background())
	require.ErrorIs(t, err, destination.ErrDestinationNotFound)
}

func TestPublish_UsesKeyAsPartitionKey(t *testing.T) {
	api := &fakeAPI{}
	s := NewWithAPI(api, staticCredentials, "sales", "us-east-1")

	receipt, err := s.Publish(context.Background(), "order-1", []byte(`{"order_id":"order-1"}`))
	require.NoError(t, err)
	require.Equal(t, "shardId-000000000001", receipt.Partition)
	require.NotEmpty(t, receipt.Sequence)

	require.Len(t, api.puts, 1)
	require.Equal(t, "order-1", aws.ToString(api.puts[0].PartitionKey))
	require.Equal(t, "sales", aws.ToString(api.puts[0].StreamName))
}

func TestPublish_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"throttled", &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, destination.ErrTransient},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, destination.ErrUnauthorized},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredTokenException"}, destination.ErrUnauthorized},
		{"deleted", &types.ResourceNotFoundException{Message: aws.String("gone")}, destination.ErrDestinationNotFound},
		{"network", errors.New("connection reset by peer"), destination.ErrTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewWithAPI(&fakeAPI{putErr: tc.err}, staticCredentials, "sales", "us-east-1")

			_, err := s.Publish(context.Background(), "k", []byte("{}"))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPublish_CredentialRefreshFailureIsFatal(t *testing.T) {
	expired := unauthorizedOnFailure(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("refresh failed: token expired")
	}))

	client := kinesis.NewFromConfig(aws.Config{
		Region:      "us-east-1",
		Credentials: expired,
		Retryer: func() aws.Retryer {
			return aws.NopRetryer{}
		},
	})

	s := NewWithAPI(client, staticCredentials, "sales", "us-east-1")

	_, err := s.Publish(context.Background(), "order-1", []byte(`{"order_id":"order-1"}`))
	require.ErrorIs(t, err, destination.ErrUnauthorized)
	require.NotErrorIs(t, err, destination.ErrTransient)
	require.True(t, destination.IsFatal(err))
	require.Equal(t, destination.KindUnauthorized, destination.Classify(err))
}

func TestUnauthorizedOnFailure_KeepsCancellation(t *testing.T) {
	calls := 0
	provider := unauthorizedOnFailure(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		calls++
		return aws.Credentials{}, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Retrieve(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, destination.ErrUnauthorized)
	require.Equal(t, 1, calls)

	require.Nil(t, unauthorizedOnFailure(nil))
}
