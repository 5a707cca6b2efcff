package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock("PLAN-1")
	m.Unlock("PLAN-1")

	// Should be able to lock again
	m.Lock("PLAN-1")
	m.Unlock("PLAN-1")
}

func TestMutexMap_DifferentKeys(t *testing.T) {
	m := NewMutexMap()

	done := make(chan struct{})

	m.Lock("PLAN-1")
	go func() {
		// PLAN-2 should not be blocked by PLAN-1
		m.Lock("PLAN-2")
		m.Unlock("PLAN-2")
		close(done)
	}()

	<-done
	m.Unlock("PLAN-1")
}

func TestMutexMap_Concurrent(t *testing.T) {
	m := NewMutexMap()
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("shared")
			atomic.AddInt64(&counter, 1)
			m.Unlock("shared")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected counter=100, got %d", counter)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "watch.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()
}

func TestFileLock_DoubleLockRejected(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "watch.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err == nil {
		fl2.Unlock()
		t.Fatal("expected second TryLock to fail")
	}
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "watch.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("re-lock after unlock failed: %v", err)
	}
	fl2.Unlock()
}

func TestFileLock_DoubleUnlockSafe(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "watch.lock")

	fl := NewFileLock(lockPath)
	fl.TryLock()
	fl.Unlock()
	// Double unlock should be safe
	if err := fl.Unlock(); err != nil {
		t.Fatalf("double unlock should be safe, got: %v", err)
	}
}

func TestMutexMap_Do(t *testing.T) {
	m := NewMutexMap()
	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do("PLAN-1", func() error {
				if n := atomic.AddInt32(&inside, 1); n != 1 {
					t.Errorf("%d goroutines inside the critical section", n)
				}
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	boom := errors.New("boom")
	if err := m.Do("PLAN-1", func() error { return boom }); err != boom {
		t.Errorf("Do returned %v, want %v", err, boom)
	}
	// the mutex must be released after an error
	m.Lock("PLAN-1")
	m.Unlock("PLAN-1")

	if m.Len() != 1 {
		t.Errorf("expected 1 mutex, got %d", m.Len())
	}
}

func TestFileLock_ReportsOwner(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	pid, ok := ReadOwner(lockPath)
	if !ok || pid != os.Getpid() {
		t.Errorf("ReadOwner = %d, %v; want %d", pid, ok, os.Getpid())
	}

	err := NewFileLock(lockPath).TryLock()
	if err == nil || !strings.Contains(err.Error(), "locked by pid") {
		t.Errorf("expected owner in error, got %v", err)
	}
}

func TestReadOwner_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.lock")
	os.WriteFile(path, []byte("not-a-pid"), 0600)
	if _, ok := ReadOwner(path); ok {
		t.Error("expected garbage lock file to have no owner")
	}
}

func TestExclusive_SerializesReadModifyWrite(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "plans.lock")
	counter := filepath.Join(dir, "counter")
	os.WriteFile(counter, []byte("0"), 0600)

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Exclusive(lockPath, func() error {
				if n := atomic.AddInt32(&inside, 1); n != 1 {
					t.Errorf("%d callers inside the critical section", n)
				}
				defer atomic.AddInt32(&inside, -1)

				data, err := os.ReadFile(counter)
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(string(data))
				if err != nil {
					return err
				}
				return os.WriteFile(counter, []byte(strconv.Itoa(n+1)), 0600)
			})
			if err != nil {
				t.Errorf("Exclusive: %v", err)
			}
		}()
	}
	wg.Wait()

	data, _ := os.ReadFile(counter)
	if string(data) != "20" {
		t.Errorf("counter = %s, want 20", data)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file should stay in place: %v", err)
	}
}

func TestExclusive_ReleasesOnError(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "plans.lock")
	boom := errors.New("boom")
	if err := Exclusive(lockPath, func() error { return boom }); err != boom {
		t.Fatalf("Exclusive returned %v, want %v", err, boom)
	}

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("lock still held after fn failed: %v", err)
	}
	fl.Unlock()
}
