package cfn

// Intrinsic functions and pseudo parameters. They are plain maps so that
// both the JSON and the YAML encoders render them in long form.

func Ref(logicalID string) map[string]any {
	return map[string]any{"Ref": logicalID}
}

func GetAtt(logicalID, attribute string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{logicalID, attribute}}
}

func Sub(format string) map[string]any {
	return map[string]any{"Fn::Sub": format}
}

func SubWith(format string, vars map[string]any) map[string]any {
	return map[string]any{"Fn::Sub": []any{format, vars}}
}

func Join(sep string, parts ...any) map[string]any {
	return map[string]any{"Fn::Join": []any{sep, parts}}
}

func Select(index int, list any) map[string]any {
	return map[string]any{"Fn::Select": []any{index, list}}
}

// GetAZs lists the availability zones of region, or of the stack's region
// when region is empty.
func GetAZs(region string) map[string]any {
	return map[string]any{"Fn::GetAZs": region}
}

func AccountID() map[string]any {
	return Ref("AWS::AccountId")
}

func Region() map[string]any {
	return Ref("AWS::Region")
}

func Partition() map[string]any {
	return Ref("AWS::Partition")
}

// Tags renders key/value pairs in the list form most resource types expect.
func Tags(kv ...string) []any {
	if len(kv)%2 != 0 {
		panic("tags must be key value pairs")
	}
	tags := make([]any, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		tags = append(tags, map[string]any{"Key": kv[i], "Value": kv[i+1]})
	}
	return tags
}
