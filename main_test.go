package main

import (
	"path/filepath"
	"testing"

	"aplgui/internal/config"
)

func TestLoadConfig_FlagsOfRunningCommand(t *testing.T) {
	t.Setenv("APL_PROJECT_ROOT", "")
	root := newRootCmd()
	watch, _, err := root.Find([]string{"watch"})
	if err != nil {
		t.Fatal(err)
	}
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	if err := serve.Flags().Parse([]string{"--port", "4100", "--project", project}); err != nil {
		t.Fatal(err)
	}
	if err := watch.Flags().Parse([]string{"--port", "4200"}); err != nil {
		t.Fatal(err)
	}

	v := config.NewViper()
	v.Set("data_dir", t.TempDir())
	cfg, err := loadConfig(v, serve.Flags(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 4100 {
		t.Errorf("Port = %d, want 4100", cfg.Port)
	}
	if cfg.ProjectRoot != filepath.Clean(project) {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	root := newRootCmd()
	v := config.NewViper()
	v.Set("data_dir", t.TempDir())
	cfg, err := loadConfig(v, root.Flags(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 3001 || cfg.Host != "localhost" {
		t.Errorf("addr = %s", cfg.Addr())
	}
	if cfg.MDNS.Enabled {
		t.Error("mDNS enabled by default")
	}
}
