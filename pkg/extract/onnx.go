package extract

import (
	"fmt"
	"sync"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes a pretrained image model, such as MobileNet with its classification head removed.
type ONNXConfig struct {
	ModelPath         string `json:"modelPath"`
	SharedLibraryPath string `json:"sharedLibraryPath"` // Path to libonnxruntime.so. Empty to use the default search path.
	InputName         string `json:"inputName"`
	OutputName        string `json:"outputName"`
	InputWidth        int    `json:"inputWidth"`
	InputHeight       int    `json:"inputHeight"`
	EmbeddingWidth    int    `json:"embeddingWidth"`
	NumThreads        int    `json:"numThreads"` // 0 = use all cores
}

// ONNXExtractor runs a frame through an image model, and uses the model's output as the embedding.
// Input is NCHW float32 with pixel values scaled to [-1,1].
type ONNXExtractor struct {
	log     logs.Log
	config  ONNXConfig
	lock    sync.Mutex // Run is not safe to call concurrently on one session
	session *ort.DynamicAdvancedSession
}

func NewONNXExtractor(log logs.Log, config ONNXConfig) (*ONNXExtractor, error) {
	if config.InputWidth <= 0 || config.InputHeight <= 0 || config.EmbeddingWidth <= 0 {
		return nil, fmt.Errorf("ONNX extractor needs inputWidth, inputHeight and embeddingWidth")
	}
	if config.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(config.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("Failed to initialize ONNX environment: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("Failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("Failed to set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(config.NumThreads); err != nil {
		log.Warnf("Failed to set ONNX thread count: %v", err)
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath, []string{config.InputName}, []string{config.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("Failed to load model %v: %w", config.ModelPath, err)
	}
	log.Infof("Loaded embedding model %v (%v x %v -> %v)", config.ModelPath, config.InputWidth, config.InputHeight, config.EmbeddingWidth)

	return &ONNXExtractor{
		log:     log,
		config:  config,
		session: session,
	}, nil
}

func (o *ONNXExtractor) Width() int {
	return o.config.EmbeddingWidth
}

func (o *ONNXExtractor) Extract(frame player.Frame) (knn.Embedding, error) {
	img := frame.Image
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("%w: frame at %.3f has no image", ErrExtraction, frame.Time)
	}
	if img.Width != o.config.InputWidth || img.Height != o.config.InputHeight {
		img = cimg.ResizeNew(img, o.config.InputWidth, o.config.InputHeight, nil)
	}
	input := PixelsToEmbedding(img, true)
	for i := range input {
		input[i] = input[i]*2 - 1
	}

	tensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(o.config.InputHeight), int64(o.config.InputWidth)), []float32(input))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", ErrExtraction, err)
	}
	defer tensor.Destroy()

	o.lock.Lock()
	outputs := make([]ort.Value, 1)
	err = o.session.Run([]ort.Value{tensor}, outputs)
	o.lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", ErrExtraction, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: model output is not float32", ErrExtraction)
	}
	// Copy, because the tensor's memory is released by Destroy
	emb := make(knn.Embedding, len(out.GetData()))
	copy(emb, out.GetData())
	return checkWidth(emb, o.config.EmbeddingWidth)
}

func (o *ONNXExtractor) Close() {
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	ort.DestroyEnvironment()
}
