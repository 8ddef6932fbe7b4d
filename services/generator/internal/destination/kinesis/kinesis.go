// Package kinesis publishes to an Amazon Kinesis Data Stream.
package kinesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/smithy-go"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
)

// API is the subset of the Kinesis client the driver calls.
type API interface {
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

type Stream struct {
	api         API
	credentials aws.CredentialsProvider
	name        string
	region      string
}

// New resolves the default AWS config for region. Credentials are only
// resolved later, by Validate.
func New(ctx context.Context, streamName, region string) (*Stream, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	cfg.Credentials = unauthorizedOnFailure(cfg.Credentials)

	return NewWithAPI(kinesis.NewFromConfig(cfg), cfg.Credentials, streamName, region), nil
}

// unauthorizedOnFailure marks credential resolution failures, including a
// refresh failing inside a client call, as ErrUnauthorized.
func unauthorizedOnFailure(p aws.CredentialsProvider) aws.CredentialsProvider {
	if p == nil {
		return nil
	}

	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		creds, err := p.Retrieve(ctx)
		if err != nil && ctx.Err() == nil {
			return creds, fmt.Errorf("%w: %w", destination.ErrUnauthorized, err)
		}

		return creds, err
	})
}

func NewWithAPI(api API, credentials aws.CredentialsProvider, streamName, region string) *Stream {
	return &Stream{
		api:         api,
		credentials: credentials,
		name:        streamName,
		region:      region,
	}
}

func (s *Stream) Name() string {
	return fmt.Sprintf("kinesis:%s/%s", s.region, s.name)
}

func (s *Stream) Validate(ctx context.Context) error {
	if s.credentials == nil {
		return fmt.Errorf("%w: no aws credentials configured", destination.ErrUnauthorized)
	}
	if _, err := s.credentials.Retrieve(ctx); err != nil {
		return fmt.Errorf("%w: aws credentials not found: %v", destination.ErrUnauthorized, err)
	}

	out, err := s.api.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(s.name),
	})
	if err != nil {
		return s.mapError(err)
	}

	if out.StreamDescriptionSummary != nil && out.StreamDescriptionSummary.StreamStatus == types.StreamStatusDeleting {
		return fmt.Errorf("%w: kinesis stream %q in %s is being deleted", destination.ErrDestinationNotFound, s.name, s.region)
	}

	return nil
}

func (s *Stream) Publish(ctx context.Context, key string, payload []byte) (destination.Receipt, error) {
	out, err := s.api.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(s.name),
		PartitionKey: aws.String(key),
		Data:         payload,
	})
	if err != nil {
		return destination.Receipt{}, s.mapError(err)
	}

	return destination.Receipt{
		Partition: aws.ToString(out.ShardId),
		Sequence:  aws.ToString(out.SequenceNumber),
	}, nil
}

func (s *Stream) Close() error {
	return nil
}

var unauthorizedCodes = map[string]struct{}{
	"AccessDeniedException":       {},
	"UnrecognizedClientException": {},
	"ExpiredTokenException":       {},
	"InvalidSignatureException":   {},
	"IncompleteSignature":         {},
	"MissingAuthenticationToken":  {},
	"InvalidClientTokenId":        {},
	"KMSAccessDeniedException":    {},
}

func (s *Stream) mapError(err error) error {
	if errors.Is(err, destination.ErrUnauthorized) {
		return err
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: kinesis stream %q in %s: %v", destination.ErrDestinationNotFound, s.name, s.region, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := unauthorizedCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s", destination.ErrUnauthorized, apiErr.ErrorCode())
		}
	}

	return fmt.Errorf("%w: %w", destination.ErrTransient, err)
}
