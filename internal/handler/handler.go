package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
	"rollcall/internal/netinfo"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

type Handler struct {
	store   *attendance.Store
	blob    store.Blob
	faculty auth.Faculty
	metrics *metrics.Metrics
	info    netinfo.Info
}

func New(s *attendance.Store, blob store.Blob, faculty auth.Faculty, m *metrics.Metrics, info netinfo.Info) *Handler {
	return &Handler{store: s, blob: blob, faculty: faculty, metrics: m, info: info}
}

// Register mounts the API on r. limit guards the endpoints students hit.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/session", h.Session)
		api.GET("/attendance", h.Attendance)
		api.POST("/attendance", limit, h.Submit)
		api.GET("/students", h.Students)
		api.GET("/network-info", h.NetworkInfo)
		api.GET("/qr.png", h.QR)
		api.POST("/login", limit, h.Login)

		faculty := api.Group("", h.faculty.Middleware())
		faculty.DELETE("/attendance", h.Reset)
		faculty.DELETE("/attendance/:student", h.Remove)
		faculty.POST("/students", h.AddStudent)
		faculty.DELETE("/students/:name", h.RemoveStudent)
	}
}

// Documents a failed request may have been saving.
const (
	docAttendance = "attendance"
	docRoster     = "roster"
)

// fail maps store errors onto status codes. Anything unexpected is a 500
// naming the document that was not saved; the caller should retry the whole
// operation.
func (h *Handler) fail(c *gin.Context, err error, doc string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrInvalidName), errors.Is(err, roster.ErrEmptyName):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrAlreadyPresent), errors.Is(err, roster.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrNotPresent), errors.Is(err, attendance.ErrNotEnrolled),
		errors.Is(err, roster.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		if attendance.IsPersist(err) {
			h.metrics.PersistFailures.Inc()
		}
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"message": "error saving " + doc + ", please retry"})
		return
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.blob.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}

// ---------- Session & attendance ----------

func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessionId": h.store.Session()})
}

func (h *Handler) Attendance(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sessionId":      snap.Session,
		"attendanceData": snap.Present(),
	})
}

type submitRequest struct {
	Student string `json:"student"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Student == "" {
		h.metrics.Submissions.WithLabelValues(metrics.OutcomeInvalid).Inc()
		h.fail(c, attendance.ErrInvalidName, docAttendance)
		return
	}

	e, err := h.store.Record(c.Request.Context(), req.Student)
	if err != nil {
		h.metrics.Submissions.WithLabelValues(outcome(err)).Inc()
		h.fail(c, err, docAttendance)
		return
	}
	h.metrics.Submissions.WithLabelValues(metrics.OutcomeRecorded).Inc()
	log.Printf("attendance recorded for %q in session %s", e.Student, e.Session)
	c.JSON(http.StatusOK, gin.H{
		"message":   "attendance recorded successfully",
		"sessionId": e.Session,
		"timestamp": e.At,
	})
}

func outcome(err error) string {
	switch {
	case errors.Is(err, attendance.ErrAlreadyPresent):
		return metrics.OutcomeConflict
	case errors.Is(err, attendance.ErrInvalidName):
		return metrics.OutcomeInvalid
	case errors.Is(err, attendance.ErrNotEnrolled):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

func (h *Handler) Remove(c *gin.Context) {
	student := c.Param("student")
	if err := h.store.Remove(c.Request.Context(), student); err != nil {
		h.fail(c, err, docAttendance)
		return
	}
	log.Printf("removed %q from attendance", student)
	c.JSON(http.StatusOK, gin.H{"message": student + " removed from attendance"})
}

func (h *Handler) Reset(c *gin.Context) {
	sid, err := h.store.Reset(c.Request.Context())
	if err != nil {
		h.fail(c, err, docAttendance)
		return
	}
	h.metrics.Resets.Inc()
	log.Printf("attendance cleared, session %s started", sid)
	c.JSON(http.StatusOK, gin.H{"message": "all attendance cleared", "sessionId": sid})
}

// ---------- Roster ----------

func (h *Handler) Students(c *gin.Context) {
	students := h.store.SearchStudents(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students)})
}

type studentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) AddStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, roster.ErrEmptyName, docRoster)
		return
	}
	name, err := h.store.AddStudent(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err, docRoster)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": name + " added successfully", "name": name})
}

func (h *Handler) RemoveStudent(c *gin.Context) {
	name := c.Param("name")
	dropped, err := h.store.RemoveStudent(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err, docRoster)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": name + " deleted successfully", "attendanceRemoved": dropped})
}

// ---------- Faculty screen ----------

func (h *Handler) NetworkInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

func (h *Handler) QR(c *gin.Context) {
	png, err := netinfo.QR(h.info.StudentURL, 300)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to generate QR"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

type loginRequest struct {
	Passcode string `json:"passcode" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	if !h.faculty.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"message": "faculty login is not enabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "passcode required"})
		return
	}
	tok, err := h.faculty.Login(req.Passcode)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid passcode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok.Value, "expiresAt": tok.ExpiresAt.Unix()})
}
