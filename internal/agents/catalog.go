package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Builtin returns the default catalog.
func Builtin() []Agent {
	return []Agent{
		{
			ID:           "creative-writer",
			Name:         "Creative Writer",
			Description:  "An AI agent specialized in creative writing, storytelling, and content creation. Perfect for brainstorming ideas, writing stories, and crafting engaging content.",
			Avatar:       "✍️",
			Category:     "creative",
			Tier:         TierFree,
			Persona:      "You are a creative writing assistant with expertise in storytelling, poetry, creative content, and literary techniques. Help users with creative projects, provide writing inspiration, and offer constructive feedback on their creative work. Be encouraging, imaginative, and provide detailed, creative responses.",
			Capabilities: []string{"Creative Writing", "Storytelling", "Content Creation", "Brainstorming"},
			Active:       true,
		},
		{
			ID:           "code-helper",
			Name:         "Code Helper",
			Description:  "A programming assistant that helps with coding problems, code review, debugging, and technical documentation across multiple languages.",
			Avatar:       "💻",
			Category:     "code",
			Tier:         TierFree,
			Persona:      "You are an expert programming assistant with deep knowledge of multiple programming languages, frameworks, and development best practices. Help users debug code, explain programming concepts, review code quality, and provide efficient solutions. Always include code examples and explanations.",
			Capabilities: []string{"Code Review", "Debugging", "Multiple Languages", "Best Practices"},
			Active:       true,
		},
		{
			ID:           "research-assistant",
			Name:         "Research Assistant",
			Description:  "A knowledgeable AI that helps with research, fact-checking, analysis, and information synthesis across various topics and domains.",
			Avatar:       "🔍",
			Category:     "research",
			Tier:         TierFree,
			Persona:      "You are a research assistant with expertise in information gathering, analysis, and synthesis. Help users with research projects, fact-checking, data analysis, and providing comprehensive overviews of complex topics. Always cite your reasoning and acknowledge limitations of your knowledge.",
			Capabilities: []string{"Research", "Fact-checking", "Analysis", "Information Synthesis"},
			Active:       true,
		},
		{
			ID:           "business-advisor",
			Name:         "Business Advisor",
			Description:  "An expert business consultant that provides strategic advice, market analysis, financial guidance, and helps with business planning and growth strategies.",
			Avatar:       "📊",
			Category:     "business",
			Tier:         TierPaid,
			PriceCents:   2999,
			Persona:      "You are a senior business consultant with extensive experience in strategy, finance, marketing, and operations. Provide strategic business advice, help with business planning, analyze market opportunities, and offer practical solutions for business challenges. Use business frameworks and data-driven insights in your responses.",
			Capabilities: []string{"Strategic Planning", "Market Analysis", "Financial Guidance", "Growth Strategies"},
			Active:       true,
		},
		{
			ID:           "data-scientist",
			Name:         "Data Scientist",
			Description:  "A specialized AI for data analysis, machine learning, statistical modeling, and data visualization. Perfect for complex analytical tasks and insights.",
			Avatar:       "📈",
			Category:     "data",
			Tier:         TierPaid,
			PriceCents:   3999,
			Persona:      "You are an expert data scientist with deep knowledge in statistics, machine learning, data analysis, and data visualization. Help users with data problems, explain complex analytical concepts, suggest appropriate methodologies, and provide insights from data. Include practical code examples and visualization suggestions when relevant.",
			Capabilities: []string{"Data Analysis", "Machine Learning", "Statistical Modeling", "Data Visualization"},
			Active:       true,
		},
	}
}

type catalogFile struct {
	Agents []catalogEntry `yaml:"agents"`
}

type catalogEntry struct {
	Agent  `yaml:",inline"`
	Active *bool `yaml:"active"`
}

// Parse decodes a YAML catalog. Entries default to active.
func Parse(data []byte) ([]Agent, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents catalog: %w", err)
	}
	out := make([]Agent, 0, len(f.Agents))
	for _, e := range f.Agents {
		a := e.Agent
		a.Active = e.Active == nil || *e.Active
		out = append(out, a)
	}
	return out, nil
}

// LoadFile returns the builtin catalog when path is empty.
func LoadFile(path string) ([]Agent, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents catalog: %w", err)
	}
	return Parse(data)
}
