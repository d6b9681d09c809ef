package analysis

// Instruction is sent alongside the image. It asks for JSON first and names
// the labelled-section layout that Parse understands as the fallback.
const Instruction = `Analyze this image and describe how to recreate it with Stable Diffusion.

Respond with ONLY a JSON object in the following format:

{
  "composition": "arrangement, viewpoint and framing of the image",
  "lighting": "light sources, direction and quality",
  "colors": "dominant colors and palette",
  "style": "artistic style, medium and genre",
  "suggestedPrompt": "a comma-separated Stable Diffusion prompt that would create a similar image"
}

If you cannot produce JSON, answer with these five labelled sections instead:
Composition: ...
Lighting: ...
Colors: ...
Style: ...
Suggested Prompt: ...

Write every value in English.`
