//go:build onnx

// Package onnx embeds text locally with ONNX Runtime and a BERT-style
// sentence transformer (all-MiniLM-L6-v2 by default). Built only with
// the `onnx` tag because it needs the onnxruntime shared library and
// model assets on disk.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

const maxSequenceLength = 128

// Config configures the embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json vocabulary.
	TokenizerPath string

	// LibraryPath locates libonnxruntime; empty uses the runtime default.
	LibraryPath string

	// Dimensions is the embedding size (default 384).
	Dimensions int
}

// Embedder runs sentence-transformer inference through ONNX Runtime.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	vocab      map[string]int64
	clsID      int64
	sepID      int64
	unkID      int64
	dimensions int
}

// New creates an embedder, initializing the ONNX runtime environment.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	vocab, err := loadVocabulary(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer vocabulary: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Embedder{
		session:    session,
		vocab:      vocab,
		clsID:      vocab["[CLS]"],
		sepID:      vocab["[SEP]"],
		unkID:      vocab["[UNK]"],
		dimensions: cfg.Dimensions,
	}, nil
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	return e.session.Destroy()
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed tokenizes the text, runs inference, and mean-pools the hidden
// states into a normalized embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inputIDs, attentionMask := e.encode(text)
	tokenTypeIDs := make([]int64, maxSequenceLength)

	shape := ort.NewShape(1, int64(maxSequenceLength))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return e.meanPool(tensor, attentionMask)
}

// meanPool averages hidden states over attended positions.
func (e *Embedder) meanPool(tensor *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()
	if len(shape) != 3 || shape[2] != int64(e.dimensions) {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	seqLen := int(shape[1])
	vec := make([]float32, e.dimensions)
	attended := float32(0)
	for i := 0; i < seqLen; i++ {
		if attentionMask[i] == 0 {
			continue
		}
		attended++
		offset := i * e.dimensions
		for j := 0; j < e.dimensions; j++ {
			vec[j] += data[offset+j]
		}
	}
	if attended == 0 {
		return vec, nil
	}

	var norm float32
	for j := range vec {
		vec[j] /= attended
		norm += vec[j] * vec[j]
	}
	if norm > 0 {
		n := float32(math.Sqrt(float64(norm)))
		for j := range vec {
			vec[j] /= n
		}
	}
	return vec, nil
}

// encode lowercases, whitespace-splits, and greedily WordPiece-matches
// the text into [CLS] tokens... [SEP] with padding to the fixed length.
func (e *Embedder) encode(text string) (inputIDs, attentionMask []int64) {
	inputIDs = make([]int64, maxSequenceLength)
	attentionMask = make([]int64, maxSequenceLength)

	pos := 0
	inputIDs[pos] = e.clsID
	attentionMask[pos] = 1
	pos++

	for _, word := range strings.Fields(strings.ToLower(text)) {
		for _, id := range e.wordPiece(word) {
			if pos >= maxSequenceLength-1 {
				break
			}
			inputIDs[pos] = id
			attentionMask[pos] = 1
			pos++
		}
	}

	inputIDs[pos] = e.sepID
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// wordPiece greedily splits one word into vocabulary pieces.
func (e *Embedder) wordPiece(word string) []int64 {
	var ids []int64
	for start := 0; start < len(word); {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := e.vocab[piece]; ok {
				ids = append(ids, id)
				matched = true
				break
			}
			end--
		}
		if !matched {
			return []int64{e.unkID}
		}
		start = end
	}
	return ids
}

// loadVocabulary reads the vocab map out of a HuggingFace tokenizer.json.
func loadVocabulary(path string) (map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("no vocabulary found in %s", path)
	}
	return file.Model.Vocab, nil
}
