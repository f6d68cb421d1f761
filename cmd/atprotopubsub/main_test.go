package main

import (
	"os"
	"testing"
	"time"

	"github.com/JWhist/atproto-firehose/internal/api"
	"github.com/JWhist/atproto-firehose/internal/firehose"
)

func TestMain(t *testing.T) {
	// main runs indefinitely and is not called here; this test only checks
	// that the package compiles and its imports resolve

	// This test verifies the application compiles and basic setup works
	t.Log("Main package test - verifying application structure")

	// Test that we can import and create the necessary components
	// This verifies the dependency structure is correct
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Main function panicked during setup: %v", r)
		}
	}()

	// We can't run main() directly as it would block, but we can test
	// that the imports and basic setup work by reaching this point
	t.Log("Basic application structure verified")
}

func TestSignalHandling(t *testing.T) {
	// signal.Notify is not called here; this only checks that a fresh
	// signal channel starts empty

	// Verify we can import and use the signal package
	sigChan := make(chan os.Signal, 1)

	// Test that channel was created successfully
	select {
	case <-sigChan:
		t.Error("Channel should be empty initially")
	default:
		// Expected - channel is empty
	}

	// Test timeout creation
	timeout := 10 * time.Second
	if timeout != 10*time.Second {
		t.Error("Failed to create timeout duration")
	}
}

func TestApplicationConstants(t *testing.T) {
	// Test that the application uses expected constants and configurations
	port := "8080"
	if port != "8080" {
		t.Errorf("Expected port 8080, got %s", port)
	}

	shutdownTimeout := 10 * time.Second
	if shutdownTimeout <= 0 {
		t.Error("Shutdown timeout should be positive")
	}
}

func TestComponentCreation(t *testing.T) {
	// Test that we can create the main application components
	// This verifies the dependency injection and setup works

	// Test firehose client creation
	firehoseClient := firehose.NewClient("bsky.network")
	if firehoseClient == nil {
		t.Error("Failed to create firehose client")
	}

	// Test API server creation
	apiServer := api.NewServer("8080")
	if apiServer == nil {
		t.Error("Failed to create API server")
	}

	// Test that components are properly connected
	if apiServer == nil || firehoseClient == nil {
		t.Error("Components should be created successfully")
	}
}

func TestApplicationFlow(t *testing.T) {
	// Test the basic application flow without starting servers

	// Create components like in main()
	apiServer := api.NewServer("0") // Port 0 for testing

	// Test that the legacy filter surface starts empty
	filters := apiServer.GetFilters()
	if filters.Repository != "" {
		t.Error("Expected empty initial filters")
	}

	// Build a filter configuration (it is not applied to the server)
	testFilters := struct {
		Repository string
		PathPrefix string
		Keyword    string
	}{
		Repository: "did:plc:test123",
		PathPrefix: "app.bsky.feed.post",
		Keyword:    "test",
	}

	// This simulates the main application flow
	if testFilters.Repository != "did:plc:test123" {
		t.Error("Test configuration should be set correctly")
	}

	// Verify server structure
	if apiServer == nil {
		t.Error("API server should be created")
	}
}
