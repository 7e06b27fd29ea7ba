package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qabrowser/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("qabrowser doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Browser
	fmt.Println()
	fmt.Println("  Browser:")
	if cfg.Browser.ChromeBin != "" {
		checkFile("configured", cfg.Browser.ChromeBin)
	}
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("    %-12s %s\n", "detected:", path)
	} else {
		fmt.Printf("    %-12s NOT FOUND (rod will download Chromium on first launch)\n", "detected:")
	}
	checkBinary("chromium")
	checkBinary("google-chrome")
	fmt.Printf("    %-12s %t\n", "headless:", cfg.Browser.Headless)
	fmt.Printf("    %-12s %s\n", "step limit:", cfg.Browser.StepTimeoutDuration())

	// Screenshots
	fmt.Println()
	if dir := cfg.Browser.ScreenshotDir; dir != "" {
		fmt.Printf("  Screenshots: %s", dir)
		if err := checkWritable(dir); err != nil {
			fmt.Printf(" (NOT WRITABLE: %s)\n", err)
		} else {
			fmt.Println(" (OK)")
		}
	} else {
		fmt.Println("  Screenshots: not persisted")
	}

	// Relay
	fmt.Println()
	fmt.Println("  Relay:")
	fmt.Printf("    %-12s %s\n", "addr:", cfg.Server.Addr)
	if cfg.Server.RateLimitRPM > 0 {
		fmt.Printf("    %-12s %d/min (burst %d)\n", "rate limit:", cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst)
	} else {
		fmt.Printf("    %-12s disabled\n", "rate limit:")
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "otlp:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-12s disabled\n", "otlp:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}

func checkFile(label, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-12s %s (NOT FOUND)\n", label+":", path)
	} else {
		fmt.Printf("    %-12s %s (OK)\n", label+":", path)
	}
}

// checkWritable creates dir if needed and writes a scratch file into it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
