package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/owopay/owo-api/internal/pkg/password"
)

type fakeRepo struct {
	byPhone map[string]*User
	byID    map[uuid.UUID]*User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byPhone: make(map[string]*User), byID: make(map[uuid.UUID]*User)}
}

func (f *fakeRepo) Create(_ context.Context, u *User) error {
	if _, ok := f.byPhone[u.Phone]; ok {
		return errors.New("duplicate phone")
	}
	cp := *u
	f.byPhone[u.Phone] = &cp
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetByPhone(_ context.Context, phone string) (*User, error) {
	u, ok := f.byPhone[phone]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) Update(_ context.Context, u *User) error {
	stored, ok := f.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	*stored = *u
	return nil
}

func (f *fakeRepo) UpdateOnboardingStep(_ context.Context, id uuid.UUID, step OnboardingStep) error {
	f.byID[id].OnboardingStep = step
	return nil
}

func (f *fakeRepo) UpdateKYC(_ context.Context, id uuid.UUID, status KYCStatus, bvn, dob string) error {
	u := f.byID[id]
	u.KYCStatus = status
	u.BVN.String, u.BVN.Valid = bvn, bvn != ""
	u.DateOfBirth.String, u.DateOfBirth.Valid = dob, dob != ""
	return nil
}

func (f *fakeRepo) UpdatePIN(_ context.Context, id uuid.UUID, hash string) error {
	u := f.byID[id]
	u.PINHash.String, u.PINHash.Valid = hash, true
	u.PINFailures = 0
	u.PINLockedUntil.Valid = false
	return nil
}

func (f *fakeRepo) UpdatePINFailures(_ context.Context, id uuid.UUID, failures int, lockedUntil *time.Time) error {
	u := f.byID[id]
	u.PINFailures = failures
	if lockedUntil != nil {
		u.PINLockedUntil.Time, u.PINLockedUntil.Valid = *lockedUntil, true
	} else {
		u.PINLockedUntil.Valid = false
	}
	return nil
}

func (f *fakeRepo) SetDisabled(_ context.Context, id uuid.UUID, disabled bool) error {
	f.byID[id].Disabled = disabled
	return nil
}

func seedUser(t *testing.T, repo *fakeRepo, pin string) *User {
	t.Helper()
	u := &User{ID: uuid.New(), Phone: "2348012345678", OnboardingStep: StepCompleted}
	if pin != "" {
		hash, err := password.HashPIN(pin)
		if err != nil {
			t.Fatalf("hash pin: %v", err)
		}
		u.PINHash.String, u.PINHash.Valid = hash, true
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("create: %v", err)
	}
	return u
}

func TestGetOrCreateNewAndExisting(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	u, created, err := svc.GetOrCreate(ctx, "2348012345678", "Ada")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created {
		t.Error("expected first contact to create")
	}
	if u.OnboardingStep != StepInitial {
		t.Errorf("new user step = %s, want %s", u.OnboardingStep, StepInitial)
	}

	again, created, err := svc.GetOrCreate(ctx, "2348012345678", "Ada")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if created {
		t.Error("expected second contact to find existing")
	}
	if again.ID != u.ID {
		t.Error("expected same user on repeat contact")
	}
}

func TestVerifyPINSuccess(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u := seedUser(t, repo, "1234")

	if err := svc.VerifyPIN(context.Background(), u, "1234"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyPINLockoutAfterThreeFailures(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u := seedUser(t, repo, "1234")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.VerifyPIN(ctx, u, "0000"); !errors.Is(err, ErrPINMismatch) {
			t.Fatalf("attempt %d: got %v, want ErrPINMismatch", i+1, err)
		}
	}
	// Third failure triggers the lockout.
	if err := svc.VerifyPIN(ctx, u, "0000"); !errors.Is(err, ErrPINLocked) {
		t.Fatalf("third failure: got %v, want ErrPINLocked", err)
	}

	// Even the correct PIN is rejected while locked.
	stored, _ := repo.GetByID(ctx, u.ID)
	if err := svc.VerifyPIN(ctx, stored, "1234"); !errors.Is(err, ErrPINLocked) {
		t.Fatalf("locked verify: got %v, want ErrPINLocked", err)
	}
}

func TestVerifyPINSuccessResetsFailures(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u := seedUser(t, repo, "1234")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = svc.VerifyPIN(ctx, u, "0000")
	}
	if err := svc.VerifyPIN(ctx, u, "1234"); err != nil {
		t.Fatalf("verify after failures: %v", err)
	}

	stored, _ := repo.GetByID(ctx, u.ID)
	if stored.PINFailures != 0 {
		t.Errorf("failures = %d, want 0 after success", stored.PINFailures)
	}
}

func TestVerifyPINNotSet(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u := seedUser(t, repo, "")

	if err := svc.VerifyPIN(context.Background(), u, "1234"); !errors.Is(err, ErrPINNotSet) {
		t.Fatalf("got %v, want ErrPINNotSet", err)
	}
}

func TestVerifyPINLockExpires(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	u := seedUser(t, repo, "1234")
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	if err := repo.UpdatePINFailures(ctx, u.ID, 3, &past); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	stored, _ := repo.GetByID(ctx, u.ID)
	if err := svc.VerifyPIN(ctx, stored, "1234"); err != nil {
		t.Fatalf("verify after lock expiry: %v", err)
	}
}
