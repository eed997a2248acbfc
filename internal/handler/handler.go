package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/attendance"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/auth"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/clock"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/config"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/credential"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/metrics"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/qrcode"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/queue"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/report"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

// Handler binds the core services to HTTP.
type Handler struct {
	att    *attendance.Service
	rep    *report.Service
	scopes *scope.Repository
	events queue.Queue
	days   *clock.Policy
	cfg    config.App
}

// New creates a handler over its collaborators.
func New(att *attendance.Service, rep *report.Service, scopes *scope.Repository, events queue.Queue, days *clock.Policy, cfg config.App) *Handler {
	return &Handler{att: att, rep: rep, scopes: scopes, events: events, days: days, cfg: cfg}
}

// ---------- Auth ----------

// IssuePrincipalToken mints a principal JWT. Identity management is handled
// upstream; this endpoint backs ops tooling and the dev setup, where no SSO
// fronts the service.
func (h *Handler) IssuePrincipalToken(c *gin.Context) {
	var req struct {
		PrincipalID string `json:"principal_id" binding:"required"`
		Role        string `json:"role" binding:"required,oneof=admin teacher"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, exp, err := auth.Issue(req.PrincipalID, scope.Role(req.Role), h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": token, "expires_at": exp.Unix()})
}

// ---------- Scan / Undo / Batch ----------

// Scan is the kiosk endpoint. Token decode failures and unknown students
// collapse into one generic message so the response never confirms whether
// an identifier exists.
func (h *Handler) Scan(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.att.Scan(c.Request.Context(), auth.Principal(c), req.Token)
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrMalformedToken),
		errors.Is(err, credential.ErrInvalidSignature),
		errors.Is(err, credential.ErrInvalidPayload),
		errors.Is(err, attendance.ErrStudentNotFound):
		metrics.CountScan(metrics.OutcomeRejected)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
		return
	case errors.Is(err, attendance.ErrAccessDenied):
		metrics.CountScan(metrics.OutcomeDenied)
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
		return
	}

	if res.AlreadyRecorded {
		metrics.CountScan(metrics.OutcomeDuplicate)
		c.JSON(http.StatusOK, gin.H{
			"success":         false,
			"message":         res.Student.Name + " is already recorded today",
			"student_name":    res.Student.Name,
			"student_class":   res.Student.ClassName,
			"already_scanned": true,
			"attendance_id":   res.Record.ID,
		})
		return
	}

	metrics.CountScan(metrics.OutcomeRecorded)
	if err := h.events.Publish(c.Request.Context(), queue.ScanEvent{
		RecordID:  res.Record.ID,
		StudentID: res.Student.ID,
		ClassName: res.Student.ClassName,
		Day:       h.days.FormatDay(res.Record.ScannedAt),
		ScannedAt: res.Record.ScannedAt,
	}); err != nil {
		log.Printf("scan event publish failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "attendance recorded for " + res.Student.Name,
		"student_name":    res.Student.Name,
		"student_class":   res.Student.ClassName,
		"already_scanned": false,
		"attendance_id":   res.Record.ID,
	})
}

// Undo voids a freshly scanned record within the grace window.
func (h *Handler) Undo(c *gin.Context) {
	rec, err := h.att.Undo(c.Request.Context(), auth.Principal(c), c.Param("id"))
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrRecordNotFound), errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrAlreadyVoided), errors.Is(err, attendance.ErrUndoWindowExpired):
		metrics.CountUndo(metrics.ResultRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "undo failed"})
		return
	}

	metrics.CountUndo(metrics.ResultOK)
	c.JSON(http.StatusOK, gin.H{"message": "attendance undone", "attendance_id": rec.ID})
}

// BatchCorrect applies bulk status corrections for one day.
func (h *Handler) BatchCorrect(c *gin.Context) {
	var req struct {
		Date    string `json:"date" binding:"required"`
		Records []struct {
			StudentID string `json:"student_id" binding:"required"`
			Status    string `json:"status" binding:"required"`
			ScanTime  string `json:"scan_time"`
		} `json:"records" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]attendance.BatchItem, 0, len(req.Records))
	for _, r := range req.Records {
		status, err := attendance.ParseStatus(r.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items = append(items, attendance.BatchItem{StudentID: r.StudentID, Status: status, ScanTime: r.ScanTime})
	}

	summary, err := h.att.BatchCorrect(c.Request.Context(), auth.Principal(c), req.Date, items)
	switch {
	case err == nil:
	case errors.Is(err, clock.ErrInvalidDayFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "batch update completed",
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"total":   summary.Created + summary.Updated,
	})
}

// ---------- Reads ----------

// History lists ledger rows, scope-filtered, newest first.
func (h *Handler) History(c *gin.Context) {
	limit, offset := intQuery(c, "limit", 100), intQuery(c, "offset", 0)
	entries, err := h.rep.History(c.Request.Context(), auth.Principal(c), c.Query("date"), c.Query("student_id"), limit, offset)
	switch {
	case err == nil:
	case errors.Is(err, clock.ErrInvalidDayFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Stats returns the dashboard counters.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.rep.Stats(c.Request.Context(), auth.Principal(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// ClassRoster returns a class's students and their per-day status.
func (h *Handler) ClassRoster(c *gin.Context) {
	className, day := c.Query("class_name"), c.Query("date")
	if className == "" || day == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name and date are required"})
		return
	}

	roster, err := h.rep.Roster(c.Request.Context(), auth.Principal(c), className, day)
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case errors.Is(err, clock.ErrInvalidDayFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "roster query failed"})
		return
	}
	c.JSON(http.StatusOK, roster)
}

// SemesterReport aggregates attendance per student for a semester.
func (h *Handler) SemesterReport(c *gin.Context) {
	semester := intQuery(c, "semester", 0)
	year := intQuery(c, "year", 0)
	if year == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
		return
	}

	rows, err := h.rep.Semester(c.Request.Context(), auth.Principal(c), semester, year, c.Query("class_name"))
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Classes lists the distinct class names.
func (h *Handler) Classes(c *gin.Context) {
	classes, err := h.rep.Classes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "class query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// ---------- Students ----------

type studentRequest struct {
	NIS       string `json:"nis" binding:"required"`
	Name      string `json:"name" binding:"required"`
	ClassName string `json:"class_name" binding:"required"`
}

// CreateStudent registers a student.
func (h *Handler) CreateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.att.CreateStudent(c.Request.Context(), req.NIS, req.Name, req.ClassName)
	if errors.Is(err, attendance.ErrStudentExists) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, student)
}

// ListStudents returns a page of students.
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.att.ListStudents(c.Request.Context(), intQuery(c, "limit", 100), intQuery(c, "offset", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// GetStudent fetches one student.
func (h *Handler) GetStudent(c *gin.Context) {
	student, err := h.att.GetStudent(c.Request.Context(), c.Param("id"))
	if errors.Is(err, attendance.ErrStudentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	c.JSON(http.StatusOK, student)
}

// UpdateStudent overwrites mutable fields; empty fields keep their value.
func (h *Handler) UpdateStudent(c *gin.Context) {
	var req struct {
		NIS       string `json:"nis"`
		Name      string `json:"name"`
		ClassName string `json:"class_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.att.UpdateStudent(c.Request.Context(), c.Param("id"), req.NIS, req.Name, req.ClassName)
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrStudentExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, student)
}

// DeleteStudent removes a student and, with it, their ledger rows.
func (h *Handler) DeleteStudent(c *gin.Context) {
	err := h.att.DeleteStudent(c.Request.Context(), c.Param("id"))
	if errors.Is(err, attendance.ErrStudentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// IssueCredential binds a fresh signed token to a student. Re-issuance is
// refused while a credential is live.
func (h *Handler) IssueCredential(c *gin.Context) {
	student, err := h.att.IssueCredential(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
	case errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrCredentialExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "credential issued",
		"student_id":   student.ID,
		"token":        student.Token,
		"download_url": "/v1/students/" + student.ID + "/qr.png",
	})
}

// StudentQR renders the student's stored token as a PNG.
func (h *Handler) StudentQR(c *gin.Context) {
	student, err := h.att.GetStudent(c.Request.Context(), c.Param("id"))
	if errors.Is(err, attendance.ErrStudentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	if !student.HasCredential() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no credential issued for this student"})
		return
	}

	png, err := qrcode.RenderPNG(student.Token, intQuery(c, "size", qrcode.DefaultSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ---------- Assignments ----------

// ReplaceAssignments swaps a principal's class assignments wholesale.
func (h *Handler) ReplaceAssignments(c *gin.Context) {
	var req struct {
		ClassNames []string `json:"class_names" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scopes.ReplaceAssignments(c.Request.Context(), c.Param("id"), req.ClassNames); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assignment update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal_id": c.Param("id"), "class_names": req.ClassNames})
}

// DeleteAssignments removes a departing principal's assignments.
func (h *Handler) DeleteAssignments(c *gin.Context) {
	if err := h.scopes.DeleteAssignments(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assignment delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
