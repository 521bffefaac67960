// Package main serves the published feed: every post in the done state.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/socialnet/serverless-backend/internal/api"
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
		log:  config.NewLogger(env.LogLevel).With("stage", "doneposts"),
		repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
	}
	lambda.Start(app.handler)
}

// handler returns all published posts, projected to the feed fields.
func (a *App) handler(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	posts, err := a.repo.ListByStage(cctx, models.StageDone)
	if err != nil {
		a.log.Error("list failed", "error", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	out := make([]api.DonePost, 0, len(posts))
	for _, p := range posts {
		out = append(out, api.DonePost{
			PostID:   p.PostID,
			UserName: p.UserName,
			Content:  p.Content,
			PostDate: p.PostDate,
		})
	}
	return httpx.JSON(http.StatusOK, out)
}
