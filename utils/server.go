package utils

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// ValidateServer checks that the model server answers HTTP at its base URL
func ValidateServer(server string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(server)
	if err != nil {
		return fmt.Errorf("model server not reachable at %s: %w. %s", server, err, getInstallationInstructions())
	}
	_ = resp.Body.Close()

	return nil
}

// getInstallationInstructions returns platform-specific installation instructions
func getInstallationInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install Ollama with: brew install ollama, then run: ollama serve"
	case "linux":
		return "Install Ollama from https://ollama.com/download/linux, then run: ollama serve"
	case "windows":
		return "Download Ollama from https://ollama.com/download and start it"
	default:
		return "Download Ollama from https://ollama.com/download"
	}
}
