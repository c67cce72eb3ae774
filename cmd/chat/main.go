package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/avezhov/gutenberg-qa/internal/apiclient"
	"github.com/avezhov/gutenberg-qa/internal/tui"
)

func main() {
	apiURL := flag.String("api", "", "base URL of the question-answering API")
	flag.Parse()

	_ = godotenv.Load()

	baseURL := *apiURL
	if baseURL == "" {
		baseURL = os.Getenv("API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := apiclient.New(baseURL)
	program := tea.NewProgram(tui.New(client), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatalf("chat error: %v", err)
	}
	fmt.Println("bye")
}
