package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lms/internal/logger"
	"lms/internal/services"
)

type LibraryHandler struct {
	catalog   services.CatalogService
	inventory services.InventoryService
	directory services.DirectoryService
	lending   services.LendingService
}

func NewLibraryHandler(
	catalog services.CatalogService,
	inventory services.InventoryService,
	directory services.DirectoryService,
	lending services.LendingService,
) *LibraryHandler {
	return &LibraryHandler{
		catalog:   catalog,
		inventory: inventory,
		directory: directory,
		lending:   lending,
	}
}

// RegisterRoutes mounts the API. Everything except institute management
// runs as the institute named by tenantHeader.
func RegisterRoutes(r *gin.Engine, h *LibraryHandler, tenantHeader string) {
	// Administration
	r.POST("/institutes", h.registerInstitute)
	r.GET("/institutes", h.listInstitutes)
	r.DELETE("/institutes/:id", h.removeInstitute)

	tenant := r.Group("/", Tenant(tenantHeader))

	// Catalog
	tenant.POST("/catalog/books", h.createBook)
	tenant.GET("/catalog/books/:id", h.getBook)

	// Librarian endpoints
	tenant.GET("/inventory", h.listInventory)
	tenant.POST("/inventory/books/:id/copies", h.addCopies)
	tenant.POST("/inventory/books/:id/copies/remove", h.removeCopies)
	tenant.POST("/students", h.registerStudent)
	tenant.GET("/students", h.listStudents)

	// Lending
	tenant.POST("/loans", h.issue)
	tenant.POST("/loans/return", h.returnLoan)
	tenant.GET("/loans/preview", h.previewReturn)
	tenant.GET("/students/:id/loans", h.activeLoans)
	tenant.GET("/students/:id/history", h.history)
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidCatalogEntry):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrBorrowerNotFound),
		errors.Is(err, services.ErrNoActiveLoan):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateLoan),
		errors.Is(err, services.ErrNoCopiesAvailable),
		errors.Is(err, services.ErrInsufficientCopies),
		errors.Is(err, services.ErrInstituteExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"code": services.ErrorCode(err), "error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": services.CodeInvalidRequest, "error": msg})
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

type registerInstituteRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *LibraryHandler) registerInstitute(c *gin.Context) {
	var req registerInstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	inst, err := h.directory.RegisterInstitute(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (h *LibraryHandler) listInstitutes(c *gin.Context) {
	list, err := h.directory.ListInstitutes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *LibraryHandler) removeInstitute(c *gin.Context) {
	id, ok := parseID(c, "id", "institute")
	if !ok {
		return
	}
	if err := h.directory.RemoveInstitute(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createBookRequest struct {
	Name       string   `json:"name" binding:"required"`
	Edition    int      `json:"edition"`
	Price      float64  `json:"price"`
	Department string   `json:"department" binding:"required"`
	Authors    []string `json:"authors"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.catalog.FindOrCreateBook(c.Request.Context(), services.BookSpec{
		Name:       req.Name,
		Edition:    req.Edition,
		Price:      req.Price,
		Department: req.Department,
		Authors:    req.Authors,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": id})
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	book, err := h.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) listInventory(c *gin.Context) {
	rows, err := h.inventory.ListInventory(c.Request.Context(), instituteFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

type copiesRequest struct {
	Count int `json:"count"`
}

func (h *LibraryHandler) addCopies(c *gin.Context) {
	bookID, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	var req copiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	total, err := h.inventory.AddCopies(c.Request.Context(), instituteFrom(c), bookID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "copies_available": total})
}

func (h *LibraryHandler) removeCopies(c *gin.Context) {
	bookID, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	var req copiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.inventory.RemoveCopies(c.Request.Context(), instituteFrom(c), bookID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type registerStudentRequest struct {
	Name       string `json:"name" binding:"required"`
	Year       int    `json:"year"`
	Address    string `json:"address"`
	ContactNo  string `json:"contact_no"`
	Department string `json:"department" binding:"required"`
}

func (h *LibraryHandler) registerStudent(c *gin.Context) {
	var req registerStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := h.directory.RegisterStudent(c.Request.Context(), instituteFrom(c), services.StudentSpec{
		Name:       req.Name,
		Year:       req.Year,
		Address:    req.Address,
		ContactNo:  req.ContactNo,
		Department: req.Department,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *LibraryHandler) listStudents(c *gin.Context) {
	list, err := h.directory.ListStudents(c.Request.Context(), instituteFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type loanRequest struct {
	BookID    string `json:"book_id" binding:"required,uuid"`
	StudentID string `json:"student_id" binding:"required,uuid"`
}

func (r loanRequest) ids() (bookID, studentID uuid.UUID, err error) {
	if bookID, err = uuid.Parse(r.BookID); err != nil {
		return
	}
	studentID, err = uuid.Parse(r.StudentID)
	return
}

func (h *LibraryHandler) issue(c *gin.Context) {
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	bookID, studentID, err := req.ids()
	if err != nil {
		badRequest(c, "invalid book or student id")
		return
	}
	loan, err := h.lending.Issue(c.Request.Context(), instituteFrom(c), bookID, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *LibraryHandler) returnLoan(c *gin.Context) {
	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	bookID, studentID, err := req.ids()
	if err != nil {
		badRequest(c, "invalid book or student id")
		return
	}
	loan, err := h.lending.Return(c.Request.Context(), instituteFrom(c), bookID, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) previewReturn(c *gin.Context) {
	req := loanRequest{BookID: c.Query("book_id"), StudentID: c.Query("student_id")}
	bookID, studentID, err := req.ids()
	if err != nil {
		badRequest(c, "book_id and student_id query parameters are required")
		return
	}
	preview, err := h.lending.PreviewReturn(c.Request.Context(), instituteFrom(c), bookID, studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *LibraryHandler) activeLoans(c *gin.Context) {
	studentID, ok := parseID(c, "id", "student")
	if !ok {
		return
	}
	loans, err := h.lending.ActiveLoansFor(c.Request.Context(), instituteFrom(c), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) history(c *gin.Context) {
	studentID, ok := parseID(c, "id", "student")
	if !ok {
		return
	}
	loans, err := h.lending.HistoryFor(c.Request.Context(), instituteFrom(c), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}
