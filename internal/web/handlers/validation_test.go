package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/cartridges/internal/database"
)

func formRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, r.ParseForm())
	return r
}

func TestFieldError_IsInvalidInput(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", FieldError{Field: "color_id", Message: "is required"})

	assert.True(t, errors.Is(err, database.ErrInvalidInput))
	assert.Equal(t, database.KindInvalidInput, database.Classify(err))
	assert.Equal(t, "invalid input: wrapped: color_id: is required", database.Describe(err))
}

func TestFormID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{value: "7", want: 7},
		{value: " 12 ", want: 12},
		{value: "", wantErr: true},
		{value: "0", wantErr: true},
		{value: "-3", wantErr: true},
		{value: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			id, err := formID(formRequest(t, url.Values{"color_id": {tt.value}}), "color_id")
			if tt.wantErr {
				require.ErrorIs(t, err, database.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestFormIDs(t *testing.T) {
	ids, err := formIDs(formRequest(t, url.Values{"capacity_id": {"1", "", "3"}}), "capacity_id")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	ids, err = formIDs(formRequest(t, url.Values{}), "capacity_id")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = formIDs(formRequest(t, url.Values{"capacity_id": {"1", "x"}}), "capacity_id")
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}

func TestFormInt(t *testing.T) {
	n, err := formInt(formRequest(t, url.Values{}), "retain", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = formInt(formRequest(t, url.Values{"retain": {"9"}}), "retain", 5)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = formInt(formRequest(t, url.Values{"retain": {"nine"}}), "retain", 5)
	assert.ErrorIs(t, err, database.ErrInvalidInput)
}

func TestValidateBackupDir(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{path: "/var/backups/cartridges"},
		{path: "backups"},
		{path: "./data/../backups"},
		{path: "", wantErr: true},
		{path: "..", wantErr: true},
		{path: "../elsewhere", wantErr: true},
		{path: "backups/../../x", wantErr: true},
		{path: "bad\x00dir", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateBackupDir(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, database.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	ml := func(v int) *int { return &v }
	tests := []struct {
		name    string
		query   string
		want    database.CartridgeFilter
		wantErr bool
	}{
		{name: "empty", query: ""},
		{name: "all means unset", query: "color=all&manufacturer=all&capacity=all"},
		{name: "color", query: "color=Black", want: database.CartridgeFilter{Color: "Black"}},
		{name: "trimmed", query: "manufacturer=+HP+", want: database.CartridgeFilter{Manufacturer: "HP"}},
		{name: "capacity", query: "capacity=250", want: database.CartridgeFilter{CapacityML: ml(250)}},
		{name: "capacity with unit", query: "capacity=500ML", want: database.CartridgeFilter{CapacityML: ml(500)}},
		{name: "bad capacity", query: "capacity=large", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/search?"+tt.query, nil)
			got, err := parseFilter(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, database.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCartridgeCSV(t *testing.T) {
	var buf bytes.Buffer
	err := writeCartridgeCSV(&buf, []database.Cartridge{
		{ID: 3, ModelName: "T544 Black", ReferenceCode: "T544120", Color: "Black", PrinterModel: "EcoTank L3250", Manufacturer: "Epson", Capacities: "100, 250"},
		{ID: 4, ModelName: `GT53 "XL"`, Color: "Black", PrinterModel: "Smart Tank 515", Manufacturer: "HP", Capacities: ""},
	})
	require.NoError(t, err)

	want := "id,model_name,reference_code,color,printer_model,manufacturer,capacities\n" +
		"3,T544 Black,T544120,Black,EcoTank L3250,Epson,\"100, 250\"\n" +
		"4,\"GT53 \"\"XL\"\"\",,Black,Smart Tank 515,HP,\n"
	assert.Equal(t, want, buf.String())
}

func TestColorBars(t *testing.T) {
	bars := colorBars([]database.ColorCount{
		{Color: "Black", Count: 8},
		{Color: "Cyan", Count: 4},
		{Color: "Yellow", Count: 1},
	})
	require.Len(t, bars, 3)
	assert.Equal(t, 100, bars[0].Percent)
	assert.Equal(t, 50, bars[1].Percent)
	assert.Equal(t, 12, bars[2].Percent)

	assert.Empty(t, colorBars(nil))
}

func TestSafeReturn(t *testing.T) {
	tests := map[string]string{
		"":                "/",
		"/registry":       "/registry",
		"/console?x=1":    "/console?x=1",
		"//evil.example":  "/",
		"https://example": "/",
		"/\\evil":         "/",
	}
	for value, want := range tests {
		r := formRequest(t, url.Values{"return": {value}})
		assert.Equal(t, want, safeReturn(r, "/"), value)
	}
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForError(FieldError{Field: "f", Message: "bad"}))
	assert.Equal(t, http.StatusNotFound, statusForError(database.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusForError(&database.InUseError{Manufacturer: "Epson", Models: 1}))
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("near \"SELEC\": syntax error")))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short"))

	long := strings.Repeat("x", maxFlashLen+10)
	got := clip(long)
	assert.Len(t, got, maxFlashLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}
