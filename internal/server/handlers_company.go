package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homecarehub/homecare/internal/messaging"
)

type createCompanyRequest struct {
	Name string `json:"name" binding:"required,min=2,max=120"`
	Slug string `json:"slug" binding:"required,min=2,max=60"`
}

func (s *Server) handleCreateCompany(c *gin.Context) {
	var req createCompanyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	userID := s.userID(c)
	created, err := s.companySvc.CreateCompany(c.Request.Context(), userID, s.validator.Sanitize(req.Name), req.Slug)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "company.created",
		CompanyID: &created.ID,
		ActorID:   userID,
	})
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListCompanies(c *gin.Context) {
	companies, err := s.companySvc.ListCompanies(c.Request.Context(), s.requester(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

func (s *Server) handleGetCompany(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	got, err := s.companySvc.GetCompany(c.Request.Context(), s.requester(c), companyID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

type updateCompanyRequest struct {
	Name string `json:"name" binding:"required,min=2,max=120"`
}

func (s *Server) handleUpdateCompany(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req updateCompanyRequest
	if !s.bindJSON(c, &req) {
		return
	}

	got, err := s.companySvc.UpdateCompany(c.Request.Context(), s.requester(c), companyID, s.validator.Sanitize(req.Name))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

type companyStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended"`
}

func (s *Server) handleSetCompanyStatus(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req companyStatusRequest
	if !s.bindJSON(c, &req) {
		return
	}

	got, err := s.companySvc.SetCompanyStatus(c.Request.Context(), s.requester(c), companyID, req.Status)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "company.status_changed",
		CompanyID: &companyID,
		ActorID:   s.requester(c).UserID,
		Payload:   map[string]interface{}{"status": req.Status},
	})
	c.JSON(http.StatusOK, got)
}

type homeRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=120"`
	Address  string `json:"address" binding:"omitempty,max=500"`
	Capacity int    `json:"capacity" binding:"min=0,max=500"`
}

func (s *Server) handleCreateHome(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req homeRequest
	if !s.bindJSON(c, &req) {
		return
	}

	home, err := s.companySvc.CreateHome(c.Request.Context(), s.requester(c), companyID,
		s.validator.Sanitize(req.Name), s.validator.Sanitize(req.Address), req.Capacity)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, home)
}

func (s *Server) handleListHomes(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	includeArchived := c.Query("include_archived") == "true"
	homes, err := s.companySvc.ListHomes(c.Request.Context(), s.requester(c), companyID, includeArchived)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"homes": homes})
}

func (s *Server) handleGetHome(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	home, err := s.companySvc.GetHome(c.Request.Context(), s.requester(c), homeID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, home)
}

func (s *Server) handleUpdateHome(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req homeRequest
	if !s.bindJSON(c, &req) {
		return
	}

	home, err := s.companySvc.UpdateHome(c.Request.Context(), s.requester(c), homeID,
		s.validator.Sanitize(req.Name), s.validator.Sanitize(req.Address), req.Capacity)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, home)
}

func (s *Server) handleArchiveHome(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	if err := s.companySvc.ArchiveHome(c.Request.Context(), s.requester(c), homeID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func (s *Server) handleBillingStatus(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	status, err := s.licensingSvc.BillingStatus(c.Request.Context(), s.requester(c), companyID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type changePlanRequest struct {
	Plan string `json:"plan" binding:"required,oneof=starter standard premium"`
}

func (s *Server) handleChangePlan(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req changePlanRequest
	if !s.bindJSON(c, &req) {
		return
	}

	sub, err := s.licensingSvc.ChangePlan(c.Request.Context(), s.requester(c), companyID, req.Plan)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "billing.plan_changed",
		CompanyID: &companyID,
		ActorID:   s.requester(c).UserID,
		Payload:   map[string]interface{}{"plan": req.Plan},
	})
	c.JSON(http.StatusOK, sub)
}

func (s *Server) handleCancelSubscription(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	sub, err := s.licensingSvc.Cancel(c.Request.Context(), s.requester(c), companyID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
