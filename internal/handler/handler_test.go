package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"hemodialysis-scheduler/internal/cache"
	"hemodialysis-scheduler/internal/config"
	"hemodialysis-scheduler/internal/events"
	"hemodialysis-scheduler/internal/repository/memstore"
	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

type testServer struct {
	router *gin.Engine
	admin  string
	nurse  string
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := utils.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.InitJWT(testSecret)

	log := zap.NewNop()
	store := memstore.New()
	slotCache := cache.NewSlotCache(store, nil, time.Minute, log)
	pub := events.NopPublisher{}

	equipmentService := service.NewEquipmentService(store, pub, log)
	lifecycleService := service.NewLifecycleService(store, equipmentService, pub, 0, log)
	scheduleService := service.NewScheduleService(store, slotCache, lifecycleService, log)
	slotService := service.NewSlotService(store, slotCache, log)

	cfg := &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}}
	router := SetupRouter(cfg, Handlers{
		Session: NewSessionHandler(scheduleService, lifecycleService),
		Slot:    NewSlotHandler(slotService, scheduleService),
		Patient: NewPatientHandler(scheduleService, equipmentService),
	}, log)

	return &testServer{
		router: router,
		admin:  token(t, 1, "admin"),
		nurse:  token(t, 2, "nurse"),
	}
}

type envelope struct {
	Success              bool            `json:"success"`
	Data                 json.RawMessage `json:"data"`
	Error                string          `json:"error"`
	ConflictingSessionID uint            `json:"conflicting_session_id"`
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func (s *testServer) createSlot(t *testing.T) uint {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/slots", s.admin, gin.H{
		"name": "Morning", "start_time": "06:00", "end_time": "11:00", "bed_capacity": 4,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var slot struct {
		ID uint `json:"id"`
	}
	decode(t, env, &slot)
	return slot.ID
}

type sessionBody struct {
	ID        uint   `json:"id"`
	State     string `json:"state"`
	BedNumber *int   `json:"bed_number"`
	Outcome   string `json:"outcome"`
}

func (s *testServer) book(t *testing.T, slotID, patientID uint) sessionBody {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/sessions", s.nurse, gin.H{
		"patient_id": patientID, "slot_id": slotID, "session_date": "2025-01-06",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var sess sessionBody
	decode(t, env, &sess)
	return sess
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestAuthRequired(t *testing.T) {
	s := setupServer(t)

	code, env := s.do(t, http.MethodGet, "/slots", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = s.do(t, http.MethodGet, "/slots", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/slots", s.nurse, gin.H{"name": "X", "start_time": "06:00", "end_time": "07:00"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	s := setupServer(t)
	slotID := s.createSlot(t)
	first := s.book(t, slotID, 10)
	second := s.book(t, slotID, 11)
	assert.Equal(t, "pre_scheduled", first.State)

	code, env := s.do(t, http.MethodPost, "/sessions/"+itoa(first.ID)+"/activate", s.nurse, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var active sessionBody
	decode(t, env, &active)
	assert.Equal(t, "active", active.State)
	require.NotNil(t, active.BedNumber)
	assert.Equal(t, 1, *active.BedNumber)

	// requested bed already held
	code, env = s.do(t, http.MethodPost, "/sessions/"+itoa(second.ID)+"/activate", s.nurse, gin.H{"bed_number": 1})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, first.ID, env.ConflictingSessionID)

	// bed out of range
	code, _ = s.do(t, http.MethodPost, "/sessions/"+itoa(second.ID)+"/activate", s.nurse, gin.H{"bed_number": 9})
	assert.Equal(t, http.StatusBadRequest, code)

	// an active session cannot be marked missed
	code, _ = s.do(t, http.MethodPost, "/sessions/"+itoa(first.ID)+"/missed", s.nurse, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(t, http.MethodPost, "/sessions/"+itoa(second.ID)+"/missed", s.nurse, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var missed sessionBody
	decode(t, env, &missed)
	assert.Equal(t, "discharged", missed.State)
	assert.Equal(t, "missed", missed.Outcome)

	code, _ = s.do(t, http.MethodPatch, "/sessions/"+itoa(first.ID), s.nurse, gin.H{"bed_number": 2})
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, "/slots/"+itoa(slotID)+"/beds?date=2025-01-06", s.nurse, nil)
	require.Equal(t, http.StatusOK, code)
	var occ struct {
		Occupied []int `json:"occupied"`
		NextBed  *int  `json:"next_bed"`
	}
	decode(t, env, &occ)
	assert.Equal(t, []int{2}, occ.Occupied)
	assert.Equal(t, 1, *occ.NextBed)

	// discharge is admin only
	code, _ = s.do(t, http.MethodPost, "/sessions/"+itoa(first.ID)+"/discharge", s.nurse, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, env = s.do(t, http.MethodPost, "/sessions/"+itoa(first.ID)+"/discharge", s.admin, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodGet, "/patients/10/equipment", s.nurse, nil)
	require.Equal(t, http.StatusOK, code)
	var usage struct {
		Counters struct {
			Dialyser struct {
				Count int `json:"count"`
			} `json:"dialyser"`
		} `json:"counters"`
	}
	decode(t, env, &usage)
	assert.Equal(t, 1, usage.Counters.Dialyser.Count)

	code, env = s.do(t, http.MethodGet, "/sessions?date=2025-01-06&include_archived=true", s.nurse, nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, env, &list)
	assert.Equal(t, 2, list.Count)
}

func TestSessionErrors(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodGet, "/sessions/999", s.nurse, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/sessions/abc", s.nurse, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/sessions", s.nurse, gin.H{"patient_id": 1, "slot_id": 1, "session_date": "06/01/2025"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/sessions/conflicts?from=2025-01-06&to=2025-01-05", s.nurse, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPatch, "/sessions/1", s.nurse, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGenerateSchedule(t *testing.T) {
	s := setupServer(t)
	slotID := s.createSlot(t)

	body := gin.H{"cycle": "every 2 days", "anchor_date": "2025-01-01", "slot_id": slotID, "horizon_days": 10}
	code, env := s.do(t, http.MethodPost, "/patients/5/schedule", s.nurse, body)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var out struct {
		Count int `json:"count"`
	}
	decode(t, env, &out)
	assert.Equal(t, 4, out.Count)

	code, env = s.do(t, http.MethodPost, "/patients/5/schedule", s.nurse, body)
	require.Equal(t, http.StatusCreated, code)
	decode(t, env, &out)
	assert.Equal(t, 0, out.Count)

	body["cycle"] = "fortnightly-ish"
	code, _ = s.do(t, http.MethodPost, "/patients/5/schedule", s.nurse, body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPreviewCycle(t *testing.T) {
	s := setupServer(t)

	code, env := s.do(t, http.MethodGet, "/cycles/preview?cycle=every+2+days&anchor=2025-01-01&horizon=10", s.nurse, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var preview struct {
		Dates       []string `json:"dates"`
		DaysBetween int      `json:"days_between"`
	}
	decode(t, env, &preview)
	assert.Equal(t, []string{"2025-01-03", "2025-01-05", "2025-01-07", "2025-01-09"}, preview.Dates)
	assert.Equal(t, 2, preview.DaysBetween)

	code, env = s.do(t, http.MethodGet, "/cycles/preview?cycle=Tue/Thu/Sat&anchor=2025-01-06&horizon=7", s.nurse, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var weekly struct {
		Weekdays []string `json:"weekdays"`
	}
	decode(t, env, &weekly)
	assert.Equal(t, []string{"Tuesday", "Thursday", "Saturday"}, weekly.Weekdays)

	code, _ = s.do(t, http.MethodGet, "/cycles/preview?cycle=sometimes&anchor=2025-01-01", s.nurse, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/cycles/preview?cycle=daily&anchor=2025-01-01&horizon=0", s.nurse, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
