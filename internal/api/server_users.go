package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/liqmap_bridge/internal/users"
)

type userIDInput struct {
	ID int64 `path:"id" doc:"User ID"`
}

type userOutput struct {
	Body users.User
}

func registerUserHandlers(api huma.API, svc Service, auth func(huma.Context, func(huma.Context))) {
	mw := huma.Middlewares{auth}
	tags := []string{"Users"}
	security := []map[string][]string{{"bearer": {}}}

	type listUsersOutput struct {
		Body []users.User
	}
	huma.Register(api, huma.Operation{OperationID: "list-users", Method: http.MethodGet, Path: "/api/users", Summary: "List users", Tags: tags, Security: security, Middlewares: mw},
		func(ctx context.Context, input *struct{}) (*listUsersOutput, error) {
			list, err := svc.ListUsers(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			if list == nil {
				list = []users.User{}
			}
			return &listUsersOutput{Body: list}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-user", Method: http.MethodPost, Path: "/api/users", Summary: "Create user", DefaultStatus: http.StatusCreated, Tags: tags, Security: security, Middlewares: mw},
		func(ctx context.Context, input *struct {
			Body struct {
				Username string `json:"username,omitempty"`
				Email    string `json:"email,omitempty"`
			}
		}) (*userOutput, error) {
			u, err := svc.CreateUser(ctx, input.Body.Username, input.Body.Email)
			if err != nil {
				return nil, mapErr(err)
			}
			return &userOutput{Body: u}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-user", Method: http.MethodGet, Path: "/api/users/{id}", Summary: "Get user", Tags: tags, Security: security, Middlewares: mw},
		func(ctx context.Context, input *userIDInput) (*userOutput, error) {
			u, err := svc.GetUser(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &userOutput{Body: u}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-user", Method: http.MethodPut, Path: "/api/users/{id}", Summary: "Update user", Description: "Partial update: omitted fields are left unchanged.", Tags: tags, Security: security, Middlewares: mw},
		func(ctx context.Context, input *struct {
			ID   int64 `path:"id" doc:"User ID"`
			Body struct {
				Username *string `json:"username,omitempty"`
				Email    *string `json:"email,omitempty"`
			}
		}) (*userOutput, error) {
			u, err := svc.UpdateUser(ctx, input.ID, users.Patch{Username: input.Body.Username, Email: input.Body.Email})
			if err != nil {
				return nil, mapErr(err)
			}
			return &userOutput{Body: u}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-user", Method: http.MethodDelete, Path: "/api/users/{id}", Summary: "Delete user", DefaultStatus: http.StatusNoContent, Tags: tags, Security: security, Middlewares: mw},
		func(ctx context.Context, input *userIDInput) (*struct{}, error) {
			if err := svc.DeleteUser(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return &struct{}{}, nil
		})
}
