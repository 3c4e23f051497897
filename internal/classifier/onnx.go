package classifier

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates an exported model, its metadata and optionally the
// onnxruntime shared library.
type ONNXConfig struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

// ONNXCapability runs inference with onnxruntime. The session writes into
// pre-allocated tensors, so calls are serialized.
type ONNXCapability struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	Metadata     Metadata
}

// LoadONNX initializes the runtime and opens a session for the model.
func LoadONNX(cfg ONNXConfig) (*ONNXCapability, error) {
	meta, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXCapability{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		Metadata:     *meta,
	}, nil
}

// InputSpec implements InputSpecifier.
func (c *ONNXCapability) InputSpec() (int, Layout) {
	return c.Metadata.ImageSize, c.Metadata.InputLayout()
}

// Predict copies input into the session tensor and runs the model.
func (c *ONNXCapability) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.inputTensor.GetData()
	if len(input.Data) != len(dst) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(dst), len(input.Data))
	}
	copy(dst, input.Data)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, len(c.outputTensor.GetData()))
	copy(out, c.outputTensor.GetData())
	return out, nil
}

// Close releases the session, its tensors and the runtime environment.
func (c *ONNXCapability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
