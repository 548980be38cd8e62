// @title Exam Proctor 后端 API
// @version 1.0
// @description 候选人在线考试与监考服务。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import "exam_proctor_backend/internal/cli"

func main() {
	cli.Execute()
}
