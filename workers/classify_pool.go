package workers

import (
	"context"
	"log"
	"sync"

	"github.com/classlens/backend/fer"
)

// ClassifyJob is one face crop queued for the hosted expression model.
type ClassifyJob struct {
	FaceIndex int
	CropJPEG  []byte
	Results   []fer.Prediction
	Errs      []error
	Done      *sync.WaitGroup
	Ctx       context.Context
}

// ClassifierPool fans face crops out to a fixed set of workers that call the
// hosted classifier. Results land in index-addressed slices so the original
// detection order survives concurrent classification.
type ClassifierPool struct {
	JobQueue   chan ClassifyJob
	Classifier fer.Classifier
	Wg         sync.WaitGroup
	StopChan   chan struct{}
}

func NewClassifierPool(classifier fer.Classifier, queueSize, numWorkers int) *ClassifierPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	pool := &ClassifierPool{
		JobQueue:   make(chan ClassifyJob, queueSize),
		Classifier: classifier,
		StopChan:   make(chan struct{}),
	}
	pool.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.worker(i)
	}
	log.Printf("Started %d classification worker(s) with queue size %d", numWorkers, queueSize)
	return pool
}

func (cp *ClassifierPool) worker(id int) {
	defer cp.Wg.Done()

	log.Printf("Classification worker %d started", id)
	for {
		select {
		case job, ok := <-cp.JobQueue:
			if !ok {
				log.Printf("Classification worker %d stopping: Job queue closed", id)
				return
			}

			pred, err := cp.Classifier.Classify(job.Ctx, job.CropJPEG)
			if err != nil {
				log.Printf("Worker %d: ERROR classifying face %d: %v", id, job.FaceIndex, err)
				job.Errs[job.FaceIndex] = err
			} else {
				job.Results[job.FaceIndex] = pred
			}
			job.Done.Done()

		case <-cp.StopChan:
			log.Printf("Classification worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// ClassifyAll submits every crop and blocks until each has a prediction or an
// error. Output slices are parallel to crops; crops[i] maps to results[i] and
// errs[i].
func (cp *ClassifierPool) ClassifyAll(ctx context.Context, crops [][]byte) ([]fer.Prediction, []error) {
	results := make([]fer.Prediction, len(crops))
	errs := make([]error, len(crops))

	var done sync.WaitGroup
	done.Add(len(crops))
	for i, crop := range crops {
		cp.JobQueue <- ClassifyJob{
			FaceIndex: i,
			CropJPEG:  crop,
			Results:   results,
			Errs:      errs,
			Done:      &done,
			Ctx:       ctx,
		}
	}
	done.Wait()

	return results, errs
}

// Stop signals all workers to exit and waits for them
func (cp *ClassifierPool) Stop() {
	close(cp.StopChan)
	cp.Wg.Wait()
	log.Println("All classification workers stopped")
}
