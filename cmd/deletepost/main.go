// Package main deletes a post by id.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"

	"github.com/socialnet/serverless-backend/internal/awsutil"
	"github.com/socialnet/serverless-backend/internal/config"
	"github.com/socialnet/serverless-backend/internal/ddb"
	"github.com/socialnet/serverless-backend/internal/httpx"
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
		log:  config.NewLogger(env.LogLevel).With("stage", "deletepost"),
		repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table},
	}
	lambda.Start(app.handler)
}

// handler removes the addressed post.
func (a *App) handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	postID := req.QueryStringParameters["postid"]
	if err := validate.PostID(postID); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	cctx, cancel := context.WithTimeout(ctx, a.env.CallTimeout)
	defer cancel()
	err := a.repo.Delete(cctx, postID)
	switch {
	case errors.Is(err, ddb.ErrNotFound):
		return httpx.Error(http.StatusNotFound, "post not found")
	case err != nil:
		a.log.Error("delete failed", "postId", postID, "error", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	a.log.Info("post deleted", "postId", postID)
	return httpx.JSON(http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}
