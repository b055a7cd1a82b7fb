package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("offload", func() {
	It("returns the worker's result", func() {
		v, err := offload(context.Background(), newPool(1), func() (int, error) {
			return 42, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(42))
	})

	It("returns the worker's error", func() {
		_, err := offload(context.Background(), newPool(1), func() (int, error) {
			return 0, errors.New("bad image")
		})
		Expect(err).To(MatchError("bad image"))
	})

	It("converts panics into errors", func() {
		_, err := offload(context.Background(), newPool(1), func() (int, error) {
			panic("boom")
		})
		var pe *panicError
		Expect(errors.As(err, &pe)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("boom"))
	})

	It("stops waiting when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		defer close(release)

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := offload(ctx, newPool(1), func() (int, error) {
			<-release
			return 1, nil
		})
		Expect(err).To(MatchError(context.Canceled))
	})

	It("holds the slot until an abandoned worker returns", func() {
		p := newPool(1)
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		release := make(chan struct{})

		go func() {
			<-started
			cancel()
		}()
		_, err := offload(ctx, p, func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(p.sem.TryAcquire(1)).To(BeFalse())

		close(release)
		Eventually(func() bool {
			if p.sem.TryAcquire(1) {
				p.sem.Release(1)
				return true
			}
			return false
		}).Should(BeTrue())
	})

	It("bounds concurrent work", func() {
		p := newPool(2)
		var running, peak int32
		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := offload(context.Background(), p, func() (int, error) {
					n := atomic.AddInt32(&running, 1)
					for {
						old := atomic.LoadInt32(&peak)
						if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&running, -1)
					return 0, nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()
		Expect(atomic.LoadInt32(&peak)).To(BeNumerically("<=", 2))
	})
})
