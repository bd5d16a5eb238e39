package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supportbot/gaming-guide/internal/audit"
	"github.com/supportbot/gaming-guide/internal/client"
	"github.com/supportbot/gaming-guide/internal/config"
	"github.com/supportbot/gaming-guide/internal/service"
	"github.com/supportbot/gaming-guide/pkg/redis"
)

// app 启动时组装好的依赖
type app struct {
	chat  *service.ChatService
	redis *goredis.Client
}

// Close 释放外部连接
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// newCallerIdentity 账号查询客户端，测试中替换
var newCallerIdentity = func(awsCfg aws.Config) client.CallerIdentityAPI {
	return sts.NewFromConfig(awsCfg)
}

// buildApp 组装生成后端、审计流和对话服务
//
// 账号 ID 只在启动时解析一次，之后作为普通参数传入。
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	opts := service.Options{KnowledgeBaseID: cfg.Bedrock.KnowledgeBaseID}

	var (
		kb      client.KnowledgeBaseGenerator
		direct  client.ModelInvoker
		bedrock *client.BedrockClient
	)

	needBedrock := cfg.Bedrock.RetrievalConfigured() ||
		(cfg.Chat.DirectModel == config.DirectModelBedrock && cfg.Bedrock.ModelIdentifier() != "")
	if needBedrock {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
		if err != nil {
			return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
		}
		bedrock = client.NewBedrockClientFromConfig(awsCfg, cfg.Bedrock.MaxTokens, logger)

		if cfg.Bedrock.RetrievalConfigured() {
			accountID := cfg.Bedrock.AccountID
			resolved := true
			if accountID == "" && cfg.Bedrock.ModelARN == "" && client.IsInferenceProfile(cfg.Bedrock.ModelID) {
				accountID, err = client.ResolveAccountID(ctx, newCallerIdentity(awsCfg))
				if err != nil {
					// 问候和回显仍可服务，只关闭知识库检索
					logger.Warn("解析 AWS 账号失败，关闭知识库检索", zap.Error(err))
					resolved = false
				} else {
					logger.Info("已解析 AWS 账号", zap.String("accountId", accountID))
				}
			}
			if resolved {
				opts.ModelARN = client.ResolveModelARN(cfg.Bedrock.ModelID, cfg.Bedrock.Region, accountID, cfg.Bedrock.ModelARN)
				kb = bedrock
			}
		}
	}

	switch cfg.Chat.DirectModel {
	case config.DirectModelOpenAI:
		direct = client.NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Bedrock.MaxTokens, logger)
		opts.DirectModelID = cfg.OpenAI.Model
	default:
		if bedrock != nil && cfg.Bedrock.ModelIdentifier() != "" {
			direct = bedrock
			opts.DirectModelID = cfg.Bedrock.ModelIdentifier()
		}
	}

	var recorder service.OutcomeRecorder
	if cfg.Redis.URL != "" {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			// 审计流是可选的，不影响对话
			logger.Warn("Redis 不可用，跳过审计流", zap.Error(err))
		} else {
			a.redis = rdb
			recorder = audit.NewStreamRecorder(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
		}
	}

	logger.Info("生成后端已就绪",
		zap.Bool("retrieval", kb != nil),
		zap.String("directModel", cfg.Chat.DirectModel),
		zap.Bool("directConfigured", direct != nil && opts.DirectModelID != ""),
		zap.String("modelArn", opts.ModelARN),
		zap.Bool("audit", recorder != nil))

	a.chat = service.NewChatService(cfg.Chat, opts, kb, direct, recorder, logger)
	return a, nil
}
