// Command hived runs the chat server: the loop engine, the built-in
// memory and hive-notes tools, and a websocket endpoint at /ws.
package main

import (
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/blocks"
	"github.com/hivelight/hive-go-sdk/engine"
	"github.com/hivelight/hive-go-sdk/memory"
	"github.com/hivelight/hive-go-sdk/memory/embedder/mock"
	"github.com/hivelight/hive-go-sdk/server"
	"github.com/hivelight/hive-go-sdk/tools"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Fatal("ANTHROPIC_API_KEY is not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	var reasonerOpts []engine.AnthropicOption
	if model := os.Getenv("HIVED_MODEL"); model != "" {
		reasonerOpts = append(reasonerOpts, engine.WithModel(model))
	}
	reasoner := engine.NewAnthropicReasoner(&client, reasonerOpts...)

	dir := blocks.NewMemoryDirectory()
	manager, err := blocks.NewManager(blocks.NewMemoryStore(), dir, blocks.WithLogger(logger))
	if err != nil {
		logger.Fatal("block manager", zap.Error(err))
	}

	docs := memory.NewMemoryDocumentStore()
	// Hash-based embeddings keep the daemon dependency-free out of the
	// box; build with -tags onnx and swap in embedder/onnx for real
	// semantic recall.
	recall := memory.NewRecall(mock.New(), memory.WithRecallLogger(logger))

	registry := engine.NewToolRegistry(logger)
	registry.RegisterAll(tools.NewMemoryToolkit(docs,
		tools.WithRecall(recall),
		tools.WithMemoryLogger(logger)).Tools())
	registry.RegisterAll(tools.NewHiveToolkit(manager,
		tools.WithHiveLogger(logger)).Tools())

	eng := engine.New(reasoner, registry, engine.WithLogger(logger))

	addr := os.Getenv("HIVED_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", server.New(eng, manager, dir, server.WithLogger(logger)))

	logger.Info("hived listening",
		zap.String("addr", addr),
		zap.Strings("tools", registry.Names()))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
