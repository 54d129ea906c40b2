package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// labelSeparator joins type labels inside prompts.
const labelSeparator = "、"

// openExtractionPrompt lets the model go beyond the listed labels.
// Arguments: entity types, relation types, document text.
const openExtractionPrompt = `你是药用植物领域和自然语言处理的专家，擅长从药用植物文本中提取实体及其关系。
你的任务分为两个阶段，请依次执行：
阶段1：从文本中识别出所有语义明确的实体，并标注其对应的实体类型。实体类型可参考但不限于以下列表：%s。
阶段2：在阶段1提取的实体对中，识别其间存在的语义关系，关系类型可参考但不限于以下列表：%s。
请严格按照以下 JSON 格式输出，不能有任何额外解释性文字：
{
  "entities": [
    {"entity": "一叶萩", "type": "药用植物"},
    {"entity": "大戟科", "type": "科"}
  ],
  "relationships": [
    {"head": "一叶萩", "predicate": "属于科", "tail": "大戟科"},
    {"head": "一叶萩", "predicate": "属于属", "tail": "黑面神属"}
  ]
}

输入文本：
%s`

// strictExtractionPrompt restricts the model to the listed labels.
// Arguments: entity types, relation types, document text.
const strictExtractionPrompt = `你是一名数据标注专家，擅长从药用植物文本中识别规范化的实体与其之间的语义关系。
你的任务分为两个阶段，请依次执行：
阶段1：提取文本中的所有实体，实体类型仅限于以下列表：%s，每个实体需包含其文本内容及对应类型。
阶段2：在阶段1提取的实体中，识别其间存在的语义关系，关系类型仅限于以下列表：%s。
不得使用列表以外的实体类型或关系类型。
请严格按照以下 JSON 格式输出，不能有任何额外解释性文字：
{
  "entities": [
    {"entity": "XXX", "type": "XXX"}
  ],
  "relations": [
    {"head": "XXX", "relation": "XXX", "tail": "XXX"}
  ]
}
输入文本：
%s`

// validationPrompt asks the model to correct a prior extraction.
// Arguments: document text, prior result JSON, entity types, relation types.
const validationPrompt = `你是一名专业的数据标注员，负责校对实体和关系的标注结果。请仔细检查以下标注结果是否存在不恰当或错误的地方，并返回修正后的 JSON 结果。如果结果正确，请保持不变。

输入文本：
%s

实体关系信息：
%s

参考信息：
1. 允许的实体类型：%s
2. 允许的关系类型：%s

要求：
1. 确保实体类型与文本内容、上下文以及参考的实体类型列表一致
2. 验证关系中的 head 和 tail 必须是已识别的实体
3. 检查关系的 predicate 是否合理且在参考的关系类型列表中
4. 返回修正后的 JSON 格式结果，与原始格式保持一致

返回格式：
{
  "entities": [
    {"entity": "", "type": ""}
  ],
  "relationships": [
    {"head": "", "predicate": "", "tail": ""}
  ]
}`

// joinLabels renders labels for a prompt; an empty list renders as 无.
func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "无"
	}
	return strings.Join(labels, labelSeparator)
}

// OpenPrompt builds the open-vocabulary extraction instruction.
func OpenPrompt(text string, entityTypes, relationTypes []string) string {
	return fmt.Sprintf(openExtractionPrompt, joinLabels(entityTypes), joinLabels(relationTypes), text)
}

// StrictPrompt builds the closed-vocabulary extraction instruction. It
// needs at least one entity type to restrict to.
func StrictPrompt(text string, entityTypes, relationTypes []string) (string, error) {
	if len(entityTypes) == 0 {
		return "", ErrEmptyVocabulary
	}
	return fmt.Sprintf(strictExtractionPrompt, joinLabels(entityTypes), joinLabels(relationTypes), text), nil
}

// ValidationPrompt builds the correction instruction for prior.
func ValidationPrompt(text string, prior *ExtractionResult, entityTypes, relationTypes []string) (string, error) {
	if prior == nil {
		return "", fmt.Errorf("%w: no extraction to validate", ErrPrompt)
	}
	data, err := json.MarshalIndent(prior, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrompt, err)
	}
	return fmt.Sprintf(validationPrompt, text, string(data), joinLabels(entityTypes), joinLabels(relationTypes)), nil
}
