package dispatch_test

import (
	"testing"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/dispatch"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  dispatch.Config
		wantErr bool
	}{
		{name: "defaults", config: dispatch.DefaultConfig()},
		{name: "zero workers", config: dispatch.NewConfig(dispatch.WithMaxConcurrentPartitions(0)), wantErr: true},
		{name: "zero admission bound", config: dispatch.NewConfig(dispatch.WithMaxPendingItems(0)), wantErr: true},
		{name: "custom", config: dispatch.NewConfig(dispatch.WithMaxConcurrentPartitions(3), dispatch.WithMaxPendingItems(7))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	logger := es.NoOpLogger{}
	config := dispatch.NewConfig(
		dispatch.WithLogger(logger),
		dispatch.WithMaxConcurrentPartitions(3),
		dispatch.WithMaxPendingItems(9),
	)

	if config.Logger == nil {
		t.Error("expected logger to be set")
	}
	if config.MaxConcurrentPartitions != 3 {
		t.Errorf("MaxConcurrentPartitions = %d, want 3", config.MaxConcurrentPartitions)
	}
	if config.MaxPendingItems != 9 {
		t.Errorf("MaxPendingItems = %d, want 9", config.MaxPendingItems)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PUPSTREAM_MAX_CONCURRENT_PARTITIONS", "6")
	t.Setenv("PUPSTREAM_MAX_PENDING_ITEMS", "128")

	config, err := dispatch.LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if config.MaxConcurrentPartitions != 6 {
		t.Errorf("MaxConcurrentPartitions = %d, want 6", config.MaxConcurrentPartitions)
	}
	if config.MaxPendingItems != 128 {
		t.Errorf("MaxPendingItems = %d, want 128", config.MaxPendingItems)
	}

	// Options win over the environment.
	config, err = dispatch.LoadConfigFromEnv(dispatch.WithMaxPendingItems(4))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if config.MaxPendingItems != 4 {
		t.Errorf("MaxPendingItems = %d, want 4", config.MaxPendingItems)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("PUPSTREAM_MAX_PENDING_ITEMS", "not-a-number")
	if _, err := dispatch.LoadConfigFromEnv(); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv("PUPSTREAM_MAX_PENDING_ITEMS", "0")
	if _, err := dispatch.LoadConfigFromEnv(); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	config, err := dispatch.LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if config.MaxPendingItems != dispatch.DefaultMaxPendingItems {
		t.Errorf("MaxPendingItems = %d, want %d", config.MaxPendingItems, dispatch.DefaultMaxPendingItems)
	}
}
