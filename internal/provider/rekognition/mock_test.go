package rekognition

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
)

// mockRekognitionAPI is a mock implementation of RekognitionAPI interface for testing
type mockRekognitionAPI struct {
	indexFacesFunc         func(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	searchFacesFunc        func(ctx context.Context, params *rekognition.SearchFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesOutput, error)
	deleteFacesFunc        func(ctx context.Context, params *rekognition.DeleteFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error)
	createCollectionFunc   func(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
	describeCollectionFunc func(ctx context.Context, params *rekognition.DescribeCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.DescribeCollectionOutput, error)

	searchCalls int
	createCalls int
	deleteCalls int
}

func (m *mockRekognitionAPI) IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error) {
	if m.indexFacesFunc != nil {
		return m.indexFacesFunc(ctx, params, optFns...)
	}
	return &rekognition.IndexFacesOutput{}, nil
}

func (m *mockRekognitionAPI) SearchFaces(ctx context.Context, params *rekognition.SearchFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesOutput, error) {
	m.searchCalls++
	if m.searchFacesFunc != nil {
		return m.searchFacesFunc(ctx, params, optFns...)
	}
	return &rekognition.SearchFacesOutput{}, nil
}

func (m *mockRekognitionAPI) DeleteFaces(ctx context.Context, params *rekognition.DeleteFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DeleteFacesOutput, error) {
	m.deleteCalls++
	if m.deleteFacesFunc != nil {
		return m.deleteFacesFunc(ctx, params, optFns...)
	}
	return &rekognition.DeleteFacesOutput{DeletedFaces: params.FaceIds}, nil
}

func (m *mockRekognitionAPI) CreateCollection(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error) {
	m.createCalls++
	if m.createCollectionFunc != nil {
		return m.createCollectionFunc(ctx, params, optFns...)
	}
	return &rekognition.CreateCollectionOutput{}, nil
}

func (m *mockRekognitionAPI) DescribeCollection(ctx context.Context, params *rekognition.DescribeCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.DescribeCollectionOutput, error) {
	if m.describeCollectionFunc != nil {
		return m.describeCollectionFunc(ctx, params, optFns...)
	}
	return &rekognition.DescribeCollectionOutput{}, nil
}
