package service

import (
	"context"
	"errors"
	"log"

	"connectrpc.com/connect"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/pool"
)

func (s *UploadService) AddProject(
	ctx context.Context,
	req *connect.Request[AddProjectRequest],
) (*connect.Response[Project], error) {
	m := req.Msg
	p, err := s.registry.AddProject(ctx, pool.AddProjectRequest{
		Label:        m.Label,
		GcpProjectId: m.GcpProjectId,
		ClientId:     m.ClientId,
		ClientSecret: m.ClientSecret,
		MaxAccounts:  m.MaxAccounts,
		AddedBy:      actor(req.Header()),
	})
	if err != nil {
		log.Printf("Failed to add project: %v", err)
		return nil, toConnectError(err)
	}
	log.Printf("Added project %s (%s)", p.ProjectId, p.Label)
	return connect.NewResponse(toProject(p)), nil
}

func (s *UploadService) UpdateProject(
	ctx context.Context,
	req *connect.Request[UpdateProjectRequest],
) (*connect.Response[Project], error) {
	m := req.Msg
	if m.ProjectId == "" {
		return nil, toConnectError(apperr.Validation("projectId is required"))
	}
	update := pool.UpdateProjectRequest{
		Label:       m.Label,
		MaxAccounts: m.MaxAccounts,
		UpdatedBy:   actor(req.Header()),
	}
	if m.Status != nil {
		status := database.ProjectStatus(*m.Status)
		update.Status = &status
	}

	p, err := s.registry.UpdateProject(ctx, m.ProjectId, update)
	if err != nil {
		log.Printf("Failed to update project %s: %v", m.ProjectId, err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toProject(p)), nil
}

func (s *UploadService) ListProjects(
	ctx context.Context,
	req *connect.Request[ListProjectsRequest],
) (*connect.Response[ListProjectsResponse], error) {
	p, err := page(req.Msg.Page, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	status := database.ProjectStatus(req.Msg.Status)
	if status != "" && !status.Valid() {
		return nil, toConnectError(apperr.Validation("unknown project status %q", req.Msg.Status))
	}

	projects, total, err := s.registry.ListProjects(ctx, database.ProjectFilter{Status: status, Page: p})
	if err != nil {
		log.Printf("Failed to list projects: %v", err)
		return nil, toConnectError(err)
	}
	resp := &ListProjectsResponse{Projects: make([]*Project, 0, len(projects)), Total: total, Page: p.Page, Limit: p.Limit}
	for _, proj := range projects {
		resp.Projects = append(resp.Projects, toProject(proj))
	}
	return connect.NewResponse(resp), nil
}

func (s *UploadService) AddAccount(
	ctx context.Context,
	req *connect.Request[AddAccountRequest],
) (*connect.Response[Account], error) {
	m := req.Msg
	a, err := s.registry.AddAccount(ctx, pool.AddAccountRequest{
		ProjectId:    m.ProjectId,
		Email:        m.Email,
		ChannelId:    m.ChannelId,
		ChannelTitle: m.ChannelTitle,
		RefreshToken: m.RefreshToken,
		Tags:         m.Tags,
		AddedBy:      actor(req.Header()),
	})
	if err != nil {
		log.Printf("Failed to add account %s: %v", m.Email, err)
		return nil, toConnectError(err)
	}
	log.Printf("Connected account %s (%s) to project %s", a.AccountId, a.Email, a.ProjectId)
	return connect.NewResponse(toAccount(a)), nil
}

func (s *UploadService) UpdateAccount(
	ctx context.Context,
	req *connect.Request[UpdateAccountRequest],
) (*connect.Response[Account], error) {
	m := req.Msg
	if m.AccountId == "" {
		return nil, toConnectError(apperr.Validation("accountId is required"))
	}
	update := pool.UpdateAccountRequest{Tags: m.Tags, UpdatedBy: actor(req.Header())}
	if m.Status != nil {
		status := database.AccountStatus(*m.Status)
		update.Status = &status
	}

	a, err := s.registry.UpdateAccount(ctx, m.AccountId, update)
	if err != nil {
		log.Printf("Failed to update account %s: %v", m.AccountId, err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toAccount(a)), nil
}

func (s *UploadService) ListAccounts(
	ctx context.Context,
	req *connect.Request[ListAccountsRequest],
) (*connect.Response[ListAccountsResponse], error) {
	p, err := page(req.Msg.Page, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	status := database.AccountStatus(req.Msg.Status)
	if status != "" && !status.Valid() {
		return nil, toConnectError(apperr.Validation("unknown account status %q", req.Msg.Status))
	}

	accounts, total, err := s.registry.ListAccounts(ctx, database.AccountFilter{
		Status:    status,
		ProjectId: req.Msg.ProjectId,
		Page:      p,
	})
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		return nil, toConnectError(err)
	}
	resp := &ListAccountsResponse{Accounts: make([]*Account, 0, len(accounts)), Total: total, Page: p.Page, Limit: p.Limit}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, toAccount(a))
	}
	return connect.NewResponse(resp), nil
}

func (s *UploadService) CheckAccount(
	ctx context.Context,
	req *connect.Request[CheckAccountRequest],
) (*connect.Response[Account], error) {
	if req.Msg.AccountId == "" {
		return nil, toConnectError(apperr.Validation("accountId is required"))
	}
	account, err := s.store.GetAccount(ctx, req.Msg.AccountId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, toConnectError(apperr.NotFound("account %s not found", req.Msg.AccountId))
		}
		return nil, toConnectError(err)
	}

	checked, err := s.monitor.CheckAccount(ctx, account)
	if err != nil {
		log.Printf("Failed to check account %s: %v", account.AccountId, err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toAccount(checked)), nil
}
