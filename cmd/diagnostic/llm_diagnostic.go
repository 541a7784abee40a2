// File: cmd/diagnostic/llm_diagnostic.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/iyunix/go-medgemma/internal/config"
	"github.com/iyunix/go-medgemma/internal/services/ai"
)

func main() {
	question := flag.String("prompt", "What are the early signs of pneumonia on a chest X-ray?", "question sent to the model")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	model, err := ai.NewModel(cfg.AIConfig())
	if err != nil {
		log.Fatalf("❌ Model backend init failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("🚀 Testing %s backend (model %s)...\n", cfg.ModelBackend, cfg.ModelName)
	start := time.Now()
	if err := model.Load(ctx); err != nil {
		log.Fatalf("❌ Load failed: %v", err)
	}
	defer func() { _ = model.Unload(context.Background()) }()
	fmt.Printf("✅ Loaded in %.2fs\n", time.Since(start).Seconds())

	st := model.Status()
	fmt.Printf("✅ Device: %s (accelerator: %v)\n", st.Device, st.AcceleratorAvailable)

	start = time.Now()
	var first time.Duration
	fragments := 0
	err = model.StreamCompletion(ctx, ai.Request{Prompt: *question, MaxTokens: 256}, func(delta string) error {
		if fragments == 0 {
			first = time.Since(start)
		}
		fragments++
		fmt.Print(delta)
		return nil
	})
	fmt.Println()
	if err != nil {
		log.Fatalf("❌ Generation failed: %v", err)
	}
	fmt.Printf("✅ %d fragments, first after %.2fs, total %.2fs\n",
		fragments, first.Seconds(), time.Since(start).Seconds())
}
