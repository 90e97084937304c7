package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/homecarehub/homecare/internal/messaging"
	"github.com/homecarehub/homecare/pkg/models"
)

func (s *Server) handleListStaff(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	members, err := s.staffSvc.ListStaff(c.Request.Context(), s.requester(c), companyID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": members})
}

type createAssignmentRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	HomeID   string `json:"home_id" binding:"required,uuid"`
	Role     string `json:"role" binding:"required,oneof=manager senior carer"`
	Position string `json:"position" binding:"omitempty,max=60"`
	Subrole  string `json:"subrole" binding:"omitempty,max=60"`
}

func (s *Server) handleCreateAssignment(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req createAssignmentRequest
	if !s.bindJSON(c, &req) {
		return
	}

	userID, ok1 := parseID(req.UserID)
	homeID, ok2 := parseID(req.HomeID)
	if !ok1 || !ok2 {
		s.abortInvalidID(c)
		return
	}

	assignment, err := s.staffSvc.CreateAssignment(c.Request.Context(), s.requester(c),
		companyID, userID, homeID, req.Role,
		s.validator.Sanitize(req.Position), s.validator.Sanitize(req.Subrole))
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "staff.assigned",
		CompanyID: &companyID,
		ActorID:   s.requester(c).UserID,
		Payload:   map[string]interface{}{"assignment_id": assignment.ID.String(), "role": assignment.Role},
	})
	c.JSON(http.StatusCreated, assignment)
}

func (s *Server) handleUpdateAssignment(c *gin.Context) {
	assignmentID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req models.RoleChangeRequest
	if !s.bindJSON(c, &req) {
		return
	}

	assignment, err := s.staffSvc.UpdateAssignment(c.Request.Context(), s.requester(c), assignmentID, &req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "staff.role_changed",
		CompanyID: &assignment.CompanyID,
		ActorID:   s.requester(c).UserID,
		Payload:   map[string]interface{}{"assignment_id": assignment.ID.String(), "role": assignment.Role},
	})
	c.JSON(http.StatusOK, assignment)
}

func (s *Server) handleSelfUpdate(c *gin.Context) {
	assignmentID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req models.SelfUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}

	assignment, err := s.staffSvc.SelfUpdate(c.Request.Context(), s.requester(c), assignmentID, &req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func (s *Server) handleEndAssignment(c *gin.Context) {
	assignmentID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	if err := s.staffSvc.EndAssignment(c.Request.Context(), s.requester(c), assignmentID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (s *Server) handleChangeCompanyRole(c *gin.Context) {
	membershipID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req models.CompanyRoleChangeRequest
	if !s.bindJSON(c, &req) {
		return
	}

	membership, err := s.staffSvc.ChangeCompanyRole(c.Request.Context(), s.requester(c), membershipID, req.Role)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	membershipID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	if err := s.staffSvc.RemoveMember(c.Request.Context(), s.requester(c), membershipID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *Server) handleInvite(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}
	var req models.InviteRequest
	if !s.bindJSON(c, &req) {
		return
	}

	ttl := time.Duration(s.cfg.App.InviteTTLHours) * time.Hour
	invitation, token, err := s.staffSvc.Invite(c.Request.Context(), s.requester(c), companyID, &req, ttl)
	if err != nil {
		s.renderError(c, err)
		return
	}

	// The invite link is emailed when a registered user matches; otherwise
	// the caller forwards it. The token itself is never persisted.
	link := fmt.Sprintf("%s/invitations/accept?token=%s", s.cfg.App.BaseURL, token)
	if user, lookupErr := s.authSvc.GetUserByEmail(c.Request.Context(), invitation.Email); lookupErr == nil {
		_, _ = s.notifications.NotifyEmail(c.Request.Context(), user.ID, &companyID, "staff.invited",
			"You have been invited", "Accept your invitation: "+link, user.Email)
	}

	c.JSON(http.StatusCreated, gin.H{"invitation": invitation, "accept_url": link})
}

type acceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleAcceptInvite(c *gin.Context) {
	var req acceptInviteRequest
	if !s.bindJSON(c, &req) {
		return
	}

	user, err := s.authSvc.GetUser(c.Request.Context(), s.userID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}

	membership, err := s.staffSvc.AcceptInvite(c.Request.Context(), user, req.Token)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.publish(c, messaging.Event{
		Type:      "staff.invite_accepted",
		CompanyID: &membership.CompanyID,
		ActorID:   user.ID,
	})
	c.JSON(http.StatusCreated, membership)
}

func (s *Server) handleListInvitations(c *gin.Context) {
	companyID, ok := parseIDParam(c, "companyID")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	invitations, err := s.staffSvc.ListInvitations(c.Request.Context(), s.requester(c), companyID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

func (s *Server) handleRevokeInvitation(c *gin.Context) {
	invitationID, ok := parseIDParam(c, "id")
	if !ok {
		s.abortInvalidID(c)
		return
	}

	if err := s.staffSvc.RevokeInvitation(c.Request.Context(), s.requester(c), invitationID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
