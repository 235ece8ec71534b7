package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/sparsha/internal/calibrate"
	"github.com/ayusman/sparsha/internal/vision"
)

// ErrNoProfile is returned when no stored calibration profile exists.
var ErrNoProfile = errors.New("no calibration profile stored")

// ProfileInfo summarizes a stored calibration profile.
type ProfileInfo struct {
	ID        string
	CreatedAt time.Time
	ViewSize  image.Point
}

// SaveProfile persists a calibration profile and returns its new id.
func (s *Store) SaveProfile(p *calibrate.Profile) (string, error) {
	correction, err := p.CorrectionMap.ToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode correction map: %w", err)
	}
	homography, err := p.ViewHomography.ToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode homography: %w", err)
	}
	reflectance, err := p.Reflectance.ToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode reflectance: %w", err)
	}

	contour := new(bytes.Buffer)
	for _, c := range p.ScreenContour {
		binary.Write(contour, binary.LittleEndian, c.X)
		binary.Write(contour, binary.LittleEndian, c.Y)
	}

	lut := new(bytes.Buffer)
	for _, entry := range p.LUT {
		binary.Write(lut, binary.LittleEndian, entry[0])
		binary.Write(lut, binary.LittleEndian, entry[1])
		binary.Write(lut, binary.LittleEndian, entry[2])
	}

	id := uuid.New().String()
	_, err = s.db.Exec(`
		INSERT INTO profiles (id, view_width, view_height, correction_map, view_homography, reflectance, screen_contour, color_lut)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ViewSize.X, p.ViewSize.Y, correction, homography, reflectance, contour.Bytes(), lut.Bytes(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert profile: %w", err)
	}
	return id, nil
}

// LoadLatestProfile reconstructs the most recently saved profile.
func (s *Store) LoadLatestProfile() (*calibrate.Profile, error) {
	row := s.db.QueryRow(`
		SELECT view_width, view_height, correction_map, view_homography, reflectance, screen_contour, color_lut
		FROM profiles ORDER BY created_at DESC, rowid DESC LIMIT 1`)

	var width, height int
	var correction, homography, reflectance, contour, lut []byte
	if err := row.Scan(&width, &height, &correction, &homography, &reflectance, &contour, &lut); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoProfile
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	profile, err := calibrate.NewProfile(image.Pt(width, height))
	if err != nil {
		return nil, err
	}

	if err := decodeMat(correction, height, width, gocv.MatTypeCV32FC2, &profile.CorrectionMap); err != nil {
		profile.Close()
		return nil, fmt.Errorf("failed to decode correction map: %w", err)
	}
	if err := decodeMat(homography, 3, 3, gocv.MatTypeCV64F, &profile.ViewHomography); err != nil {
		profile.Close()
		return nil, fmt.Errorf("failed to decode homography: %w", err)
	}
	if err := decodeMat(reflectance, height, width, gocv.MatTypeCV32FC3, &profile.Reflectance); err != nil {
		profile.Close()
		return nil, fmt.Errorf("failed to decode reflectance: %w", err)
	}

	reader := bytes.NewReader(contour)
	for reader.Len() >= 8 {
		var x, y float32
		binary.Read(reader, binary.LittleEndian, &x)
		binary.Read(reader, binary.LittleEndian, &y)
		profile.ScreenContour = append(profile.ScreenContour, gocv.Point2f{X: x, Y: y})
	}

	reader = bytes.NewReader(lut)
	for i := range profile.LUT {
		var entry vision.Vec3
		for ch := 0; ch < 3; ch++ {
			if err := binary.Read(reader, binary.LittleEndian, &entry[ch]); err != nil {
				profile.Close()
				return nil, fmt.Errorf("failed to decode color lookup entry %d: %w", i, err)
			}
		}
		profile.LUT[i] = entry
	}

	return profile, nil
}

// ListProfiles returns summaries of all stored profiles, newest first.
func (s *Store) ListProfiles() ([]ProfileInfo, error) {
	rows, err := s.db.Query(`SELECT id, created_at, view_width, view_height FROM profiles ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var infos []ProfileInfo
	for rows.Next() {
		var info ProfileInfo
		var width, height int
		if err := rows.Scan(&info.ID, &info.CreatedAt, &width, &height); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		info.ViewSize = image.Pt(width, height)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteProfile removes a stored profile by id.
func (s *Store) DeleteProfile(id string) error {
	result, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNoProfile
	}
	return nil
}

// decodeMat replaces dst with a mat rebuilt from raw bytes.
func decodeMat(data []byte, rows, cols int, matType gocv.MatType, dst *gocv.Mat) error {
	decoded, err := gocv.NewMatFromBytes(rows, cols, matType, data)
	if err != nil {
		return err
	}
	defer decoded.Close()
	decoded.CopyTo(dst)
	return nil
}
