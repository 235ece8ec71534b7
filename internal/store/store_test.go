package store

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/calibrate"
	"github.com/ayusman/sparsha/internal/vision"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "sparsha.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleProfile(t *testing.T) *calibrate.Profile {
	t.Helper()

	profile, err := calibrate.NewProfile(image.Pt(32, 24))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(profile.Close)

	profile.CorrectionMap.SetTo(gocv.NewScalar(1.5, 2.5, 0, 0))
	profile.Reflectance.SetTo(gocv.NewScalar(0.9, 1.0, 1.1, 0))
	profile.ScreenContour = []gocv.Point2f{
		{X: 10, Y: 20}, {X: 10, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 20},
	}
	for i := range profile.LUT {
		profile.LUT[i] = vision.Vec3{float32(i), float32(i) * 2, float32(i) * 3}
	}
	return profile
}

func TestSaveAndLoadProfile(t *testing.T) {
	s := testStore(t)
	original := sampleProfile(t)

	id, err := s.SaveProfile(original)
	if err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a profile id")
	}

	loaded, err := s.LoadLatestProfile()
	if err != nil {
		t.Fatalf("LoadLatestProfile failed: %v", err)
	}
	defer loaded.Close()

	if loaded.ViewSize != original.ViewSize {
		t.Errorf("view size = %v, want %v", loaded.ViewSize, original.ViewSize)
	}
	if len(loaded.ScreenContour) != 4 {
		t.Fatalf("expected 4 contour points, got %d", len(loaded.ScreenContour))
	}
	if loaded.ScreenContour[2] != (gocv.Point2f{X: 300, Y: 200}) {
		t.Errorf("contour corner = %v", loaded.ScreenContour[2])
	}
	if loaded.LUT[511] != original.LUT[511] {
		t.Errorf("lookup entry = %v, want %v", loaded.LUT[511], original.LUT[511])
	}

	got := loaded.CorrectionMap.GetVecfAt(5, 5)
	if got[0] != 1.5 || got[1] != 2.5 {
		t.Errorf("correction map entry = %v", got)
	}
}

func TestLoadLatestProfile_Empty(t *testing.T) {
	s := testStore(t)

	if _, err := s.LoadLatestProfile(); !errors.Is(err, ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}
}

func TestListAndDeleteProfiles(t *testing.T) {
	s := testStore(t)
	profile := sampleProfile(t)

	first, err := s.SaveProfile(profile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveProfile(profile); err != nil {
		t.Fatal(err)
	}

	infos, err := s.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(infos))
	}

	if err := s.DeleteProfile(first); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if err := s.DeleteProfile(first); !errors.Is(err, ErrNoProfile) {
		t.Errorf("expected ErrNoProfile on double delete, got %v", err)
	}

	infos, err = s.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Errorf("expected 1 profile after delete, got %d", len(infos))
	}
}
