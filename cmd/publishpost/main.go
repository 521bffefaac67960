// Package main finalizes a staged post: the user's edited content replaces
// the extracted text and the record moves to done.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"

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
		log:  config.NewLogger(env.LogLevel).With("stage", "publishpost"),
		repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
	}
	lambda.Start(app.handler)
}

// handler applies the edit-and-publish transition.
func (a *App) handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body api.PublishRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if err := validate.PostID(body.PostID); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	if err := validate.Content(body.Content); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	err := a.repo.UpdateContentAndStage(cctx, body.PostID, body.Content, models.StageDone)
	switch {
	case errors.Is(err, ddb.ErrNotFound):
		return httpx.Error(http.StatusNotFound, "post not found")
	case errors.Is(err, ddb.ErrInvalidTransition):
		return httpx.Error(http.StatusConflict, "post already published")
	case err != nil:
		a.log.Error("update failed", "postId", body.PostID, "error", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	a.log.Info("post published", "postId", body.PostID)
	return httpx.JSON(http.StatusOK, map[string]string{"message": "Post updated successfully"})
}
