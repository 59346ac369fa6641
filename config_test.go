package livefs

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			want: Config{
				Driver:       "local",
				LocalRoot:    ".",
				ProjectMount: "/project",
				ScratchMount: "/app",
			},
		},
		{
			name: "memory project with custom mounts",
			envVars: map[string]string{
				"BEAVER_LIVEFS_DRIVER":           "memory",
				"BEAVER_LIVEFS_PROJECT_MOUNT":    "/fs/local",
				"BEAVER_LIVEFS_SCRATCH_MOUNT":    "/tmp",
				"BEAVER_LIVEFS_SCRATCH_MAX_SIZE": "1048576",
			},
			want: Config{
				Driver:         "memory",
				LocalRoot:      ".",
				ProjectMount:   "/fs/local",
				ScratchMount:   "/tmp",
				ScratchMaxSize: 1048576,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}
			t.Cleanup(func() {
				for k := range tt.envVars {
					os.Unsetenv(k)
				}
			})

			got, err := GetConfig()
			if err != nil {
				t.Fatalf("GetConfig() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("GetConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Driver: "local", ProjectMount: "/project", ScratchMount: "/app"}, false},
		{"no scratch", Config{Driver: "local", ProjectMount: "/project"}, false},
		{"missing driver", Config{ProjectMount: "/project"}, true},
		{"missing project mount", Config{Driver: "local"}, true},
		{"clashing mounts", Config{Driver: "local", ProjectMount: "/p", ScratchMount: "p/"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigMount(t *testing.T) {
	reg := NewRegistry()
	var created []string
	reg.Register("fake", func(cfg *Config) (FileSystem, error) {
		created = append(created, cfg.Driver)
		return NewMountManager(), nil
	})

	cfg := &Config{Driver: "fake", ProjectMount: "/project", ScratchMount: "/app", ScratchMaxSize: 42}
	mm := NewMountManager()
	var scratchSize int64 = -1
	err := cfg.Mount(reg, mm, func(maxSize int64) FileSystem {
		scratchSize = maxSize
		return NewMountManager()
	})
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	if diff := cmp.Diff([]string{"/project", "/app"}, mm.MountPaths()); diff != "" {
		t.Errorf("mount paths mismatch (-want +got):\n%s", diff)
	}
	if scratchSize != 42 || len(created) != 1 {
		t.Errorf("unexpected factory calls: scratch=%d created=%v", scratchSize, created)
	}

	if _, err := reg.Create(&Config{Driver: "nope"}); err == nil {
		t.Error("expected unregistered driver error")
	}
	if diff := cmp.Diff([]string{"fake"}, reg.Drivers()); diff != "" {
		t.Errorf("drivers mismatch (-want +got):\n%s", diff)
	}
}
