// Package main lists the requesting owner's posts that still need review:
// everything the pipeline left in the staging or error state.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/socialnet/serverless-backend/internal/api"
	"github.com/socialnet/serverless-backend/internal/authz"
	"github.com/socialnet/serverless-backend/internal/awsutil"
	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/ddb"
	"github.com/socialnet/serverless-backend/internal/httpx"
	"github.com/socialnet/serverless-backend/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	env  config.Env
	log  *slog.Logger
	repo *ddb.Repo
}

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoadAPI()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	app := &App{
		env:  env,
		log:  config.NewLogger(env.LogLevel).With("stage", "pendingposts"),
		repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
	}
	lambda.Start(app.handler)
}

// handler returns the owner's staging and error posts.
func (a *App) handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	owner, err := authz.Owner(req, a.env.DevBypassAuth)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	posts, err := a.repo.ListByUserAndStages(cctx, owner, models.StageStaging, models.StageError)
	if err != nil {
		a.log.Error("list failed", "owner", owner, "error", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	out := make([]api.PendingPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, api.PendingPost{
			PostID:  p.PostID,
			Stage:   string(p.Staging),
			Content: p.Content,
		})
	}
	return httpx.JSON(http.StatusOK, out)
}
