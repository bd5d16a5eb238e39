package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// 跨区域推理配置文件前缀
var inferenceProfilePrefixes = []string{"us.", "eu.", "apac.", "global."}

// IsInferenceProfile 模型 ID 是否为推理配置文件
func IsInferenceProfile(modelID string) bool {
	for _, p := range inferenceProfilePrefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// ResolveModelARN 计算检索生成使用的模型 ARN
func ResolveModelARN(modelID, region, accountID, override string) string {
	if override != "" {
		return override
	}
	if IsInferenceProfile(modelID) {
		return fmt.Sprintf("arn:aws:bedrock:%s:%s:inference-profile/%s", region, accountID, modelID)
	}
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, modelID)
}

// CallerIdentityAPI STS 身份查询
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// ResolveAccountID 通过 STS 查询账号 ID，只在启动时调用一次
func ResolveAccountID(ctx context.Context, api CallerIdentityAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", ClassifyError("sts.GetCallerIdentity", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", fmt.Errorf("STS 未返回账号 ID")
	}
	return account, nil
}
