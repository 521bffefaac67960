// Package main creates a text-only post, published immediately in the done
// state without going through the extraction pipeline.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/socialnet/serverless-backend/internal/api"
	"github.com/socialnet/serverless-backend/internal/awsutil"
	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/ddb"
	"github.com/socialnet/serverless-backend/internal/httpx"
	"github.com/socialnet/serverless-backend/internal/models"
	"github.com/socialnet/serverless-backend/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	env  config.Env
	log  *slog.Logger
	repo *ddb.Repo
	now  func() time.Time
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
		log:  config.NewLogger(env.LogLevel).With("stage", "uploadtextpost"),
		repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
		now:  time.Now,
	}
	lambda.Start(app.handler)
}

// handler validates the request and inserts the post directly as done.
func (a *App) handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body api.TextPostRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if err := validate.UserName(body.UserName); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	if err := validate.Content(body.Content); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	post := models.Post{
		PostID:   models.NewPostID(),
		UserName: body.UserName,
		Content:  body.Content,
		Staging:  models.StageDone,
		PostDate: models.DateUTC(a.now()),
	}

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	if err := a.repo.Put(cctx, post); err != nil {
		a.log.Error("put failed", "owner", body.UserName, "error", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	a.log.Info("post created", "owner", body.UserName, "postId", post.PostID)
	return httpx.JSON(http.StatusOK, api.CreatedResponse{
		Message: "Post created successfully",
		PostID:  post.PostID,
	})
}
