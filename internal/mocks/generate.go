// Package mocks provides mock implementations for testing the countline detection pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the service ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	store := mocks.NewMockObjectStore(ctrl)
//	store.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://...", nil)
package mocks

// Generate mocks for the service ports: remote storage, the in-flight marker
// registry, the engine invoker and the terminal job record writer.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=service_mocks.go github.com/roadmetrics/countline/internal/service ObjectStore,MarkerRegistry,EngineInvoker,JobWriter
