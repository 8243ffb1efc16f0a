package utils

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"

	"gocv.io/x/gocv"
)

// DetectionResult is one face bounding box in pixel coordinates.
type DetectionResult struct {
	X          int
	Y          int
	W          int
	H          int
	Confidence float64
}

// DetectedFace pairs a bounding box with the JPEG-encoded crop of that
// region, ready to ship to the expression classifier.
type DetectedFace struct {
	Box      DetectionResult
	CropJPEG []byte
}

// AnnotationBox is a bounding box plus the label burned into the annotated
// image copy.
type AnnotationBox struct {
	X, Y, W, H int
	Label      string
}

type DNNFaceDetector struct {
	Net     gocv.Net
	Enabled bool

	// gocv.Net is not safe for concurrent use; one instance serves every
	// upload goroutine, so the forward pass is serialized
	mu sync.Mutex

	// configuration parameters used during detection
	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32
}

// NewDNNFaceDetector loads the DNN model
func NewDNNFaceDetector(configPath, modelPath string, confThreshold float64) *DNNFaceDetector {
	if configPath == "" || modelPath == "" {
		log.Println("detection(dnn): config or model path is empty, disabling DNN detector")
		return &DNNFaceDetector{Enabled: false}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		log.Printf("detection(dnn): ERROR loading network model: config=%s, model=%s", configPath, modelPath)
		return &DNNFaceDetector{Enabled: false}
	}
	log.Printf("detection(dnn): successfully loaded face detection model")

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)

	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Println("detection(dnn): Set backend/target to CUDA")
	} else {
		if cudaBackendErr != nil {
			log.Printf("detection(dnn): CUDA Backend not available or failed: %v. Using default backend.", cudaBackendErr)
		}
		if cudaTargetErr != nil {
			log.Printf("detection(dnn): CUDA Target not available or failed: %v. Using default target.", cudaTargetErr)
		}

		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("detection(dnn): Set backend/target to CPU (Default)")
	}

	return &DNNFaceDetector{
		Net:           net,
		Enabled:       true,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: float32(confThreshold),
	}
}

func (d *DNNFaceDetector) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Enabled {
		d.Net.Close()
		log.Println("detection(dnn): closed network")
		d.Enabled = false
	}
}

// detectMat runs face detection on a decoded image. Output order follows the
// network's detection output, which is deterministic for a given input. The
// lock covers SetInput through output parsing: the Forward result references
// net-internal memory, so it must be consumed before the next caller's input
// replaces it.
func (d *DNNFaceDetector) detectMat(img gocv.Mat) []DetectionResult {
	if d == nil || img.Empty() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Enabled {
		return nil
	}

	imgHeight := float32(img.Rows())
	imgWidth := float32(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	results := []DetectionResult{}

	sizes := detectionsMat.Size()
	if len(sizes) != 4 || sizes[0] != 1 || sizes[1] != 1 {
		log.Printf("detection(dnn): Warning - Unexpected output matrix dimensions: %v", sizes)

		if len(sizes) < 3 {
			log.Printf("detection(dnn): Error - Output matrix dimensions too small to parse")
			return results
		}
	}

	numDetections := sizes[2]
	if numDetections == 0 {
		return results // No detections found
	}

	// reshape the Mat to 2D: [N, 7] for easier access with GetFloatAt(row, col)
	detections2D := detectionsMat.Reshape(1, numDetections*sizes[3])
	detectionsData := detections2D.Reshape(1, numDetections)
	defer detectionsData.Close()

	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)

		if confidence > d.ConfThreshold {
			xMin := detectionsData.GetFloatAt(i, 3) * imgWidth
			yMin := detectionsData.GetFloatAt(i, 4) * imgHeight
			xMax := detectionsData.GetFloatAt(i, 5) * imgWidth
			yMax := detectionsData.GetFloatAt(i, 6) * imgHeight

			xMin = max(0, xMin)
			yMin = max(0, yMin)
			xMax = min(imgWidth, xMax)
			yMax = min(imgHeight, yMax)

			if xMax > xMin && yMax > yMin {
				results = append(results, DetectionResult{
					X:          int(xMin),
					Y:          int(yMin),
					W:          int(xMax - xMin),
					H:          int(yMax - yMin),
					Confidence: float64(confidence),
				})
			}
		}
	}

	return results
}

func (d *DNNFaceDetector) enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Enabled
}

// Detect decodes the image, runs face detection, and returns each face with
// its JPEG-encoded crop in detection order.
func (d *DNNFaceDetector) Detect(imageData []byte) ([]DetectedFace, error) {
	if d == nil || !d.enabled() {
		return nil, fmt.Errorf("face detector not enabled or loaded")
	}

	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode image: empty matrix")
	}
	defer img.Close()

	detections := d.detectMat(img)
	log.Printf("detection(dnn): found %d face(s)", len(detections))

	faces := make([]DetectedFace, 0, len(detections))
	for _, det := range detections {
		region := img.Region(image.Rect(det.X, det.Y, det.X+det.W, det.Y+det.H))
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
		region.Close()
		if err != nil {
			log.Printf("detection(dnn): Warning - failed to encode face crop at [%d,%d,%d,%d]: %v", det.X, det.Y, det.W, det.H, err)
			faces = append(faces, DetectedFace{Box: det})
			continue
		}
		crop := make([]byte, buf.Len())
		copy(crop, buf.GetBytes())
		buf.Close()
		faces = append(faces, DetectedFace{Box: det, CropJPEG: crop})
	}

	return faces, nil
}

// Annotate burns bounding boxes and labels into a copy of the image and
// returns it JPEG-encoded.
func (d *DNNFaceDetector) Annotate(imageData []byte, boxes []AnnotationBox) ([]byte, error) {
	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for annotation: %w", err)
	}
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode image for annotation: empty matrix")
	}
	defer img.Close()

	green := color.RGBA{0, 255, 0, 0}
	thickness := 2

	for _, box := range boxes {
		rect := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H)
		gocv.Rectangle(&img, rect, green, thickness)
		if box.Label != "" {
			gocv.PutText(&img, box.Label, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, green, 1)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
