// Command llmtest exercises the configured capability providers with a
// short intake exchange. Useful for verifying credentials before a deploy.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/atulwalsh/legal-intake-ai/cmd/mainconfig"
	appconfig "github.com/atulwalsh/legal-intake-ai/internal/config"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := llm.Request{
		System: []string{
			"You are a legal intake assistant. Keep responses brief and professional.",
		},
		Messages: []llm.ChatMessage{
			{Role: llm.ChatRoleUser, Content: "Hi, I was rear-ended last week and my neck still hurts. Can you help?"},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	}

	fmt.Println("LLM Provider Test")
	fmt.Println("-----------------")

	if cfg.GeminiAPIKey != "" {
		fmt.Println("\n[1] Testing Gemini...")
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, cfg.GeminiVisionModelID)
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			runTest(ctx, gemini, req)
			_ = gemini.Close()
		}
	} else {
		fmt.Println("\n[1] Skipping Gemini test (GEMINI_API_KEY not set)")
	}

	fmt.Println("\n[2] Testing Bedrock...")
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("    failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	bedrock := llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	runTest(ctx, bedrock, req)
}

func runTest(ctx context.Context, client llm.Client, req llm.Request) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    error: %v\n", err)
		return
	}
	fmt.Printf("    response (%v):\n    %s\n", elapsed.Round(time.Millisecond), resp.Text)
	fmt.Printf("    tokens: in=%d, out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
